package bunstore

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type applications struct {
	db *bun.DB
}

func newApplications(db *bun.DB) *applications {
	return &applications{db: db}
}

// CreatePending inserts the application and its opening history entry in one
// transaction. The partial unique index on (user_id) WHERE status='pending'
// arbitrates concurrent submissions: one insert wins, the rest roll back with
// ErrDuplicatePendingApplication.
func (s *applications) CreatePending(ctx context.Context, app *identity.RoleApplication, entry *identity.RoleApplicationHistoryEntry) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(app).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return identity.ErrDuplicatePendingApplication
			}
			return err
		}

		_, err := tx.NewInsert().Model(entry).Exec(ctx)
		return err
	})
}

func (s *applications) GetByID(ctx context.Context, id uuid.UUID) (*identity.RoleApplication, error) {
	app := &identity.RoleApplication{}
	err := s.db.NewSelect().
		Model(app).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return app, nil
}

func (s *applications) ListPending(ctx context.Context) ([]*identity.RoleApplication, error) {
	var apps []*identity.RoleApplication
	err := s.db.NewSelect().
		Model(&apps).
		Where("status = ?", identity.ApplicationPending).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (s *applications) ListByUser(ctx context.Context, userID uuid.UUID) ([]*identity.RoleApplication, error) {
	var apps []*identity.RoleApplication
	err := s.db.NewSelect().
		Model(&apps).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// Transition applies the state change as a guarded UPDATE keyed on the
// expected from-status, appends the history entry, and promotes the owning
// user's role when requested, all in one transaction. A zero-row update means
// the row moved under us; the caller sees ErrInvalidTransition.
func (s *applications) Transition(ctx context.Context, app *identity.RoleApplication, entry *identity.RoleApplicationHistoryEntry, promote identity.UserRole) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(app).
			Column("status", "reviewer_id", "comment", "updated_at").
			Where("id = ?", app.ID).
			Where("status = ?", entry.FromStatus).
			Exec(ctx)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return identity.ErrInvalidTransition
		}

		if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
			return err
		}

		if promote != "" {
			if _, err := tx.NewUpdate().
				Model((*identity.User)(nil)).
				Set("user_role = ?", promote).
				Set("updated_at = ?", app.UpdatedAt).
				Where("id = ?", app.UserID).
				Where("deleted_at IS NULL").
				Exec(ctx); err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *applications) History(ctx context.Context, applicationID uuid.UUID) ([]*identity.RoleApplicationHistoryEntry, error) {
	var entries []*identity.RoleApplicationHistoryEntry
	err := s.db.NewSelect().
		Model(&entries).
		Where("application_id = ?", applicationID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

var _ identity.RoleApplicationStore = (*applications)(nil)
