package bunstore

import (
	"context"
	"time"

	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type users struct {
	db   *bun.DB
	repo repository.Repository[*identity.User]
}

func newUsers(db *bun.DB) *users {
	handlers := repository.ModelHandlers[*identity.User]{
		NewRecord: func() *identity.User {
			return &identity.User{}
		},
		GetID: func(record *identity.User) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *identity.User, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	}

	return &users{
		db:   db,
		repo: repository.NewRepository[*identity.User](db, handlers),
	}
}

// Create inserts the user. The partial unique index on non-deleted emails
// decides concurrent duplicate registrations; the loser gets
// ErrDuplicateEmail.
func (s *users) Create(ctx context.Context, user *identity.User) (*identity.User, error) {
	user.Email = identity.NormalizeEmail(user.Email)
	user.EnsureStatus()

	created, err := s.repo.Create(ctx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, identity.ErrDuplicateEmail
		}
		return nil, err
	}

	return created, nil
}

func (s *users) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	user, err := s.repo.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *users) GetByEmail(ctx context.Context, email string) (*identity.User, error) {
	user, err := s.repo.GetByIdentifier(ctx, identity.NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile writes only the fields the patch carries
func (s *users) UpdateProfile(ctx context.Context, id uuid.UUID, patch identity.ProfilePatch) (*identity.User, error) {
	q := s.db.NewUpdate().
		Model((*identity.User)(nil)).
		Set("updated_at = ?", time.Now())

	touched := false
	if patch.Name != nil {
		q = q.Set("name = ?", *patch.Name)
		touched = true
	}
	if patch.Language != nil {
		q = q.Set("language = ?", *patch.Language)
		touched = true
	}

	if touched {
		res, err := q.
			Where("id = ?", id).
			Where("deleted_at IS NULL").
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil, identity.ErrNotFound
		}
	}

	return s.GetByID(ctx, id)
}

func (s *users) UpdateStatus(ctx context.Context, id uuid.UUID, status identity.UserStatus) (*identity.User, error) {
	res, err := s.db.NewUpdate().
		Model((*identity.User)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, identity.ErrNotFound
	}

	return s.GetByID(ctx, id)
}

func (s *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	res, err := s.db.NewUpdate().
		Model((*identity.User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return identity.ErrNotFound
	}

	return nil
}

var _ identity.UserStore = (*users)(nil)
