package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Verifier issues and redeems short-lived one-time codes. Issue never reports
// whether the email belongs to a registered user, so the password-reset flow
// cannot be used for account enumeration.
type Verifier struct {
	stores Stores
	cfg    Config
	sender Notifier
	logger Logger
	now    func() time.Time
}

// VerifierOption customizes Verifier construction
type VerifierOption func(*Verifier)

// WithVerifierLogger overrides the logger
func WithVerifierLogger(logger Logger) VerifierOption {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithVerifierClock injects a custom clock
func WithVerifierClock(clock func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if clock != nil {
			v.now = clock
		}
	}
}

// NewVerifier returns the verification code issuer. A nil sender is replaced
// with a no-op; the codes are still persisted and redeemable.
func NewVerifier(stores Stores, cfg Config, sender Notifier, opts ...VerifierOption) *Verifier {
	if sender == nil {
		sender = noopNotifier{}
	}

	v := &Verifier{
		stores: stores,
		cfg:    cfg,
		sender: sender,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}

	return v
}

var _ CodeIssuer = (*Verifier)(nil)

// Issue generates a 6-digit code, persists it with the configured expiry, and
// hands it to the sender. Delivery is fire-and-forget: a sender failure is
// logged, never surfaced, so the response does not leak address validity.
func (v *Verifier) Issue(ctx context.Context, email string, purpose CodePurpose) error {
	if !IsValidCodePurpose(purpose) {
		return goerrors.New("invalid code purpose", goerrors.CategoryValidation).
			WithTextCode("INVALID_CODE_PURPOSE").
			WithMetadata(map[string]any{"purpose": purpose})
	}

	code, err := randomCode()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	now := v.now()
	record := &VerificationCode{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(v.cfg.GetCodeTTL()),
		CreatedAt: now,
	}

	if err := v.stores.Codes().Save(ctx, record); err != nil {
		return wrapStorage(err, "failed to persist verification code")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := v.sender.Send(ctx, record.Email, purpose, code); err != nil {
			v.logger.Warn("verification code delivery failed", "purpose", purpose, "error", err)
		}
	}()

	return nil
}

// Redeem marks the matching unused, unexpired code as used. The check and the
// mark happen in one storage operation, so concurrent redemptions of the same
// code resolve to exactly one success. Codes are single-purpose: the purpose
// is part of the match.
func (v *Verifier) Redeem(ctx context.Context, email, code string, purpose CodePurpose) error {
	if !IsValidCodePurpose(purpose) {
		return ErrInvalidCode
	}

	if err := v.stores.Codes().Redeem(ctx, NormalizeEmail(email), code, purpose, v.now()); err != nil {
		if IsInvalidCode(err) {
			return err
		}
		return wrapStorage(err, "failed to redeem verification code")
	}

	return nil
}

// randomCode draws 6 decimal digits from the CSPRNG
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
