package bunstore

import (
	"context"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/uptrace/bun"
)

type codes struct {
	db *bun.DB
}

func newCodes(db *bun.DB) *codes {
	return &codes{db: db}
}

func (s *codes) Save(ctx context.Context, code *identity.VerificationCode) error {
	code.Email = identity.NormalizeEmail(code.Email)
	_, err := s.db.NewInsert().Model(code).Exec(ctx)
	return err
}

// Redeem is a single guarded UPDATE: only an unused, unexpired row matching
// email+code+purpose flips to used. Zero rows affected means wrong code,
// wrong purpose, expired, or already redeemed; all collapse to ErrInvalidCode
// and concurrent redemptions of the same code produce exactly one winner.
func (s *codes) Redeem(ctx context.Context, email, code string, purpose identity.CodePurpose, now time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*identity.VerificationCode)(nil)).
		Set("used = ?", true).
		Where("email = ?", identity.NormalizeEmail(email)).
		Where("code = ?", code).
		Where("purpose = ?", purpose).
		Where("used = ?", false).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return identity.ErrInvalidCode
	}

	return nil
}

var _ identity.CodeStore = (*codes)(nil)
