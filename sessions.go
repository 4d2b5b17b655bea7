package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenPair is the result of a login or refresh: a short-lived self-verifying
// access token and a long-lived opaque refresh token backed by a session row.
type TokenPair struct {
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	SessionID       uuid.UUID `json:"-"`
}

// SessionManager issues, rotates, and revokes token pairs. Multiple
// concurrent sessions per user are permitted (multi-device); each login
// creates its own session row.
type SessionManager struct {
	stores Stores
	tokens *TokenService
	cfg    Config
	logger Logger
	now    func() time.Time
}

// SessionManagerOption customizes SessionManager construction
type SessionManagerOption func(*SessionManager)

// WithSessionLogger overrides the logger
func WithSessionLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionClock injects a custom clock
func WithSessionClock(clock func() time.Time) SessionManagerOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewSessionManager returns the session/token manager
func NewSessionManager(stores Stores, tokens *TokenService, cfg Config, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		stores: stores,
		tokens: tokens,
		cfg:    cfg,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Login mints a fresh token pair for the user and persists the backing
// session row with the refresh token's hash and the configured expiry.
func (m *SessionManager) Login(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	user, err := m.stores.Users().GetByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage(err, "failed to load user for login")
	}

	user.EnsureStatus()
	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	return m.issuePair(ctx, user, func(session *Session) error {
		return m.stores.Sessions().Create(ctx, session)
	})
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// untrusted: access tokens, unknown values, and expired sessions all fail
// with ErrInvalidToken. The old session row is replaced, not reused, so a
// refresh token works at most once.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" || LooksLikeJWT(refreshToken) {
		// refresh tokens are opaque; a JWT here is an access token being
		// substituted for a refresh token
		return nil, ErrInvalidToken
	}

	oldHash := HashToken(refreshToken)

	session, err := m.stores.Sessions().GetByTokenHash(ctx, oldHash)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, wrapStorage(err, "failed to look up session")
	}

	if session.Expired(m.now()) {
		if err := m.stores.Sessions().DeleteByJTI(ctx, session.TokenJTI); err != nil && !IsNotFound(err) {
			m.logger.Warn("failed to drop expired session", "session_id", session.ID, "error", err)
		}
		return nil, ErrInvalidToken
	}

	user, err := m.stores.Users().GetByID(ctx, session.UserID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, wrapStorage(err, "failed to load session owner")
	}

	user.EnsureStatus()
	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	return m.issuePair(ctx, user, func(next *Session) error {
		return m.stores.Sessions().Replace(ctx, oldHash, next)
	})
}

// Logout revokes the session backing the presented access token. After this,
// the Gate rejects the token even though its signature remains valid until
// natural expiry, and the paired refresh token is dead.
func (m *SessionManager) Logout(ctx context.Context, accessToken string) error {
	claims, err := m.tokens.ValidateAccess(accessToken)
	if err != nil {
		return ErrUnauthenticated
	}

	if err := m.stores.Sessions().DeleteByJTI(ctx, claims.JTI()); err != nil {
		if IsNotFound(err) {
			// session already revoked; the token no longer identifies anyone
			return ErrUnauthenticated
		}
		return wrapStorage(err, "failed to delete session")
	}

	return nil
}

// issuePair mints the tokens and hands the new session row to persist, which
// is either a plain create (login) or an atomic replace (rotation).
func (m *SessionManager) issuePair(ctx context.Context, user *User, persist func(*Session) error) (*TokenPair, error) {
	access, claims, err := m.tokens.MintAccess(user)
	if err != nil {
		return nil, err
	}

	refresh, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := m.now()
	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenJTI:  claims.JTI(),
		TokenHash: HashToken(refresh),
		ExpiresAt: now.Add(m.cfg.GetRefreshTokenTTL()),
		CreatedAt: now,
	}

	if err := persist(session); err != nil {
		if IsInvalidToken(err) || IsNotFound(err) {
			// lost a rotation race; the presented token was already consumed
			return nil, ErrInvalidToken
		}
		return nil, wrapStorage(err, "failed to persist session")
	}

	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresAt: claims.Expires(),
		SessionID:       session.ID,
	}, nil
}
