package bunstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

type sessions struct {
	db *bun.DB
}

func newSessions(db *bun.DB) *sessions {
	return &sessions{db: db}
}

func (s *sessions) Create(ctx context.Context, session *identity.Session) error {
	_, err := s.db.NewInsert().Model(session).Exec(ctx)
	return err
}

func (s *sessions) GetByTokenHash(ctx context.Context, tokenHash string) (*identity.Session, error) {
	session := &identity.Session{}
	err := s.db.NewSelect().
		Model(session).
		Where("token_hash = ?", tokenHash).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, identity.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

// Replace rotates a session: the delete of the old row and the insert of the
// replacement commit together. When the old row is already gone (a concurrent
// refresh won, or logout revoked it) the whole operation fails with
// ErrInvalidToken and nothing is inserted.
func (s *sessions) Replace(ctx context.Context, oldTokenHash string, next *identity.Session) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*identity.Session)(nil)).
			Where("token_hash = ?", oldTokenHash).
			Exec(ctx)
		if err != nil {
			return err
		}

		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return identity.ErrInvalidToken
		}

		_, err = tx.NewInsert().Model(next).Exec(ctx)
		return err
	})
}

func (s *sessions) DeleteByJTI(ctx context.Context, jti string) error {
	res, err := s.db.NewDelete().
		Model((*identity.Session)(nil)).
		Where("token_jti = ?", jti).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrNotFound
	}

	return nil
}

func (s *sessions) ExistsByJTI(ctx context.Context, jti string) (bool, error) {
	return s.db.NewSelect().
		Model((*identity.Session)(nil)).
		Where("token_jti = ?", jti).
		Exists(ctx)
}

func (s *sessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*identity.Session)(nil)).
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

var _ identity.SessionStore = (*sessions)(nil)
