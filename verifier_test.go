package identity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func TestVerifierIssue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stores := newMockStores()
	sender := &MockNotifier{}
	sent := make(chan string, 1)

	cfg := DefaultConfig("test-signing-key")
	verifier := NewVerifier(stores, cfg, sender,
		WithVerifierClock(func() time.Time { return now }))

	var saved *VerificationCode
	stores.codes.On("Save", ctx, mock.MatchedBy(func(code *VerificationCode) bool {
		saved = code
		return code.Email == "user@example.com" &&
			code.Purpose == PurposePasswordReset &&
			sixDigits.MatchString(code.Code) &&
			code.ExpiresAt.Equal(now.Add(cfg.GetCodeTTL()))
	})).Return(nil).Once()

	sender.On("Send", mock.Anything, "user@example.com", PurposePasswordReset, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { sent <- args.String(3) }).
		Return(nil).Once()

	err := verifier.Issue(ctx, " User@Example.com ", PurposePasswordReset)
	require.NoError(t, err)

	select {
	case code := <-sent:
		require.NotNil(t, saved)
		assert.Equal(t, saved.Code, code, "the delivered code matches the persisted one")
	case <-time.After(time.Second):
		t.Fatal("expected the code to be handed to the sender")
	}

	stores.codes.AssertExpectations(t)
}

func TestVerifierIssueInvalidPurpose(t *testing.T) {
	stores := newMockStores()
	verifier := NewVerifier(stores, DefaultConfig("test-signing-key"), nil)

	err := verifier.Issue(context.Background(), "user@example.com", "teleport")
	assert.Error(t, err)
	stores.codes.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestVerifierIssueSurvivesSenderFailure(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	sender := &MockNotifier{}
	delivered := make(chan struct{})

	verifier := NewVerifier(stores, DefaultConfig("test-signing-key"), sender)

	stores.codes.On("Save", ctx, mock.Anything).Return(nil).Once()
	sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(delivered) }).
		Return(assert.AnError).Once()

	err := verifier.Issue(ctx, "user@example.com", PurposeRegister)
	assert.NoError(t, err, "delivery failure must never surface to the caller")

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected the sender to be invoked")
	}
}

func TestVerifierRedeem(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	stores := newMockStores()
	verifier := NewVerifier(stores, DefaultConfig("test-signing-key"), nil,
		WithVerifierClock(func() time.Time { return now }))

	stores.codes.On("Redeem", ctx, "user@example.com", "123456", PurposeLogin, now).
		Return(nil).Once()

	err := verifier.Redeem(ctx, "User@Example.com", "123456", PurposeLogin)
	require.NoError(t, err)
	stores.codes.AssertExpectations(t)
}

func TestVerifierRedeemInvalidPurpose(t *testing.T) {
	stores := newMockStores()
	verifier := NewVerifier(stores, DefaultConfig("test-signing-key"), nil)

	err := verifier.Redeem(context.Background(), "user@example.com", "123456", "teleport")
	assert.True(t, IsInvalidCode(err))
	stores.codes.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestVerifierRedeemFailure(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	verifier := NewVerifier(stores, DefaultConfig("test-signing-key"), nil)

	stores.codes.On("Redeem", ctx, "user@example.com", "000000", PurposeRegister, mock.Anything).
		Return(ErrInvalidCode).Once()

	err := verifier.Redeem(ctx, "user@example.com", "000000", PurposeRegister)
	assert.True(t, IsInvalidCode(err))
}
