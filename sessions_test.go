package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSessionConfig() *SimpleConfig {
	return &SimpleConfig{
		SigningKey:      "test-signing-key",
		Issuer:          "go-identity-test",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
}

func newTestSessionManager(stores Stores) (*SessionManager, *TokenService) {
	cfg := testSessionConfig()
	tokens := NewTokenService(cfg)
	return NewSessionManager(stores, tokens, cfg), tokens
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, tokens := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Email: "user@example.com", Role: RoleStudent, Status: UserStatusActive}

	var created *Session
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
	stores.sessions.On("Create", ctx, mock.MatchedBy(func(s *Session) bool {
		created = s
		return s.UserID == user.ID && s.TokenJTI != "" && s.TokenHash != ""
	})).Return(nil).Once()

	pair, err := mgr.Login(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, created)

	// access token is valid and tied to the session row by jti
	claims, err := tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.TokenJTI, claims.JTI())

	// refresh token is opaque and stored only as a hash
	assert.False(t, LooksLikeJWT(pair.RefreshToken))
	assert.Equal(t, HashToken(pair.RefreshToken), created.TokenHash)
	assert.NotEqual(t, pair.RefreshToken, created.TokenHash)

	assert.Equal(t, created.ID, pair.SessionID)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), created.ExpiresAt, time.Minute)
}

func TestLoginDisabledUser(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Status: UserStatusDisabled}
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()

	_, err := mgr.Login(ctx, user.ID)
	assert.True(t, IsAccountDisabled(err))
	stores.sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestLoginConcurrentSessionsAllowed(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Status: UserStatusActive}
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Twice()
	stores.sessions.On("Create", ctx, mock.Anything).Return(nil).Twice()

	first, err := mgr.Login(ctx, user.ID)
	require.NoError(t, err)
	second, err := mgr.Login(ctx, user.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Role: RoleStudent, Status: UserStatusActive}
	refresh, err := NewRefreshToken()
	require.NoError(t, err)
	oldHash := HashToken(refresh)

	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenJTI:  uuid.NewString(),
		TokenHash: oldHash,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	stores.sessions.On("GetByTokenHash", ctx, oldHash).Return(session, nil).Once()
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
	stores.sessions.On("Replace", ctx, oldHash, mock.MatchedBy(func(next *Session) bool {
		return next.UserID == user.ID && next.TokenHash != oldHash
	})).Return(nil).Once()

	pair, err := mgr.Refresh(ctx, refresh)
	require.NoError(t, err)
	assert.NotEqual(t, refresh, pair.RefreshToken, "rotation must issue a new refresh token")

	stores.sessions.AssertExpectations(t)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, tokens := newTestSessionManager(stores)

	signed, _, err := tokens.MintAccess(&User{ID: uuid.New(), Role: RoleStudent})
	require.NoError(t, err)

	_, err = mgr.Refresh(ctx, signed)
	assert.True(t, IsInvalidToken(err))
	stores.sessions.AssertNotCalled(t, "GetByTokenHash", mock.Anything, mock.Anything)
}

func TestRefreshUnknownToken(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	refresh, err := NewRefreshToken()
	require.NoError(t, err)

	stores.sessions.On("GetByTokenHash", ctx, HashToken(refresh)).Return(nil, ErrNotFound).Once()

	_, err = mgr.Refresh(ctx, refresh)
	assert.True(t, IsInvalidToken(err))
}

func TestRefreshEmptyToken(t *testing.T) {
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	_, err := mgr.Refresh(context.Background(), "")
	assert.True(t, IsInvalidToken(err))
}

func TestRefreshExpiredSession(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	refresh, err := NewRefreshToken()
	require.NoError(t, err)
	oldHash := HashToken(refresh)

	session := &Session{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		TokenJTI:  uuid.NewString(),
		TokenHash: oldHash,
		ExpiresAt: time.Now().Add(-time.Minute),
	}

	stores.sessions.On("GetByTokenHash", ctx, oldHash).Return(session, nil).Once()
	stores.sessions.On("DeleteByJTI", ctx, session.TokenJTI).Return(nil).Once()

	_, err = mgr.Refresh(ctx, refresh)
	assert.True(t, IsInvalidToken(err))
	stores.sessions.AssertNotCalled(t, "Replace", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefreshRotationRace(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Status: UserStatusActive}
	refresh, err := NewRefreshToken()
	require.NoError(t, err)
	oldHash := HashToken(refresh)

	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenJTI:  uuid.NewString(),
		TokenHash: oldHash,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	stores.sessions.On("GetByTokenHash", ctx, oldHash).Return(session, nil).Once()
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()
	// a concurrent refresh consumed the row between lookup and replace
	stores.sessions.On("Replace", ctx, oldHash, mock.Anything).Return(ErrInvalidToken).Once()

	_, err = mgr.Refresh(ctx, refresh)
	assert.True(t, IsInvalidToken(err))
}

func TestRefreshDisabledUser(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	user := &User{ID: uuid.New(), Status: UserStatusDisabled}
	refresh, err := NewRefreshToken()
	require.NoError(t, err)
	oldHash := HashToken(refresh)

	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenJTI:  uuid.NewString(),
		TokenHash: oldHash,
		ExpiresAt: time.Now().Add(time.Hour),
	}

	stores.sessions.On("GetByTokenHash", ctx, oldHash).Return(session, nil).Once()
	stores.users.On("GetByID", ctx, user.ID).Return(user, nil).Once()

	_, err = mgr.Refresh(ctx, refresh)
	assert.True(t, IsAccountDisabled(err))
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, tokens := newTestSessionManager(stores)

	signed, claims, err := tokens.MintAccess(&User{ID: uuid.New(), Role: RoleStudent})
	require.NoError(t, err)

	stores.sessions.On("DeleteByJTI", ctx, claims.JTI()).Return(nil).Once()

	require.NoError(t, mgr.Logout(ctx, signed))
	stores.sessions.AssertExpectations(t)
}

func TestLogoutAlreadyRevoked(t *testing.T) {
	ctx := context.Background()
	stores := newMockStores()
	mgr, tokens := newTestSessionManager(stores)

	signed, claims, err := tokens.MintAccess(&User{ID: uuid.New(), Role: RoleStudent})
	require.NoError(t, err)

	stores.sessions.On("DeleteByJTI", ctx, claims.JTI()).Return(ErrNotFound).Once()

	err = mgr.Logout(ctx, signed)
	assert.True(t, IsUnauthenticated(err))
}

func TestLogoutGarbageToken(t *testing.T) {
	stores := newMockStores()
	mgr, _ := newTestSessionManager(stores)

	err := mgr.Logout(context.Background(), "not-a-token")
	assert.True(t, IsUnauthenticated(err))
	stores.sessions.AssertNotCalled(t, "DeleteByJTI", mock.Anything, mock.Anything)
}
