package bunstore

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func saveCode(t *testing.T, store *Store, email, code string, purpose identity.CodePurpose, expiresAt time.Time) {
	t.Helper()

	require.NoError(t, store.Codes().Save(context.Background(), &identity.VerificationCode{
		ID:        uuid.New(),
		Email:     email,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}))
}

func TestCodesRedeemOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	saveCode(t, store, "user@example.com", "123456", identity.PurposeRegister, now.Add(5*time.Minute))

	require.NoError(t, store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeRegister, now))

	err := store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeRegister, now)
	assert.True(t, identity.IsInvalidCode(err), "a code is redeemable at most once")
}

func TestCodesRedeemWrongCode(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	saveCode(t, store, "user@example.com", "123456", identity.PurposeRegister, now.Add(5*time.Minute))

	err := store.Codes().Redeem(ctx, "user@example.com", "654321", identity.PurposeRegister, now)
	assert.True(t, identity.IsInvalidCode(err))

	// the stored code is still live after a failed attempt
	require.NoError(t, store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeRegister, now))
}

func TestCodesRedeemWrongPurpose(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	saveCode(t, store, "user@example.com", "123456", identity.PurposePasswordReset, now.Add(5*time.Minute))

	err := store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeLogin, now)
	assert.True(t, identity.IsInvalidCode(err), "codes are single-purpose")
}

func TestCodesRedeemExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	saveCode(t, store, "user@example.com", "123456", identity.PurposeRegister, now.Add(5*time.Minute))

	err := store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeRegister, now.Add(6*time.Minute))
	assert.True(t, identity.IsInvalidCode(err))
}

func TestCodesRedeemNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	saveCode(t, store, " User@Example.COM ", "123456", identity.PurposeRegister, now.Add(5*time.Minute))

	require.NoError(t, store.Codes().Redeem(ctx, "user@example.com", "123456", identity.PurposeRegister, now))
}
