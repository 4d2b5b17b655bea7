package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Caller is the resolved identity of an authenticated request. Role is read
// from the user record at check time, never from the token's claims, so role
// changes take effect on the next request regardless of token age.
type Caller struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Role  UserRole  `json:"role"`
}

// Gate is the request-path decision function every protected operation runs
// through. It verifies the token's signature and expiry, confirms an active
// session still backs the token (so logout takes effect before natural
// expiry), and resolves the caller's current role for the allow/deny check.
//
// Outcomes are never conflated: a missing, malformed, expired, or revoked
// token is ErrUnauthenticated; an authenticated caller lacking the required
// role is ErrForbidden.
type Gate struct {
	stores Stores
	tokens *TokenService
	logger Logger
	now    func() time.Time
}

// GateOption customizes Gate construction
type GateOption func(*Gate)

// WithGateLogger overrides the logger
func WithGateLogger(logger Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGateClock injects a custom clock
func WithGateClock(clock func() time.Time) GateOption {
	return func(g *Gate) {
		if clock != nil {
			g.now = clock
		}
	}
}

// NewGate returns the authorization gate
func NewGate(stores Stores, tokens *TokenService, opts ...GateOption) *Gate {
	g := &Gate{
		stores: stores,
		tokens: tokens,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// Authenticate resolves a bearer token to a caller. Every failure path fails
// closed with ErrUnauthenticated; the reason is logged, not disclosed.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := g.tokens.ValidateAccess(token)
	if err != nil {
		g.logger.Debug("gate rejected token", "error", err)
		return nil, ErrUnauthenticated
	}

	// a signature-valid token is dead the moment its session row is gone
	alive, err := g.stores.Sessions().ExistsByJTI(ctx, claims.JTI())
	if err != nil {
		return nil, wrapStorage(err, "failed to check session backing")
	}
	if !alive {
		return nil, ErrUnauthenticated
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrUnauthenticated
	}

	user, err := g.stores.Users().GetByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, wrapStorage(err, "failed to resolve caller")
	}

	user.EnsureStatus()
	if user.IsDisabled() {
		return nil, ErrUnauthenticated
	}

	return &Caller{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
	}, nil
}

// RequireRole authenticates the caller and checks their current role against
// the allowed set. An empty set admits any authenticated caller.
func (g *Gate) RequireRole(ctx context.Context, token string, allowed ...UserRole) (*Caller, error) {
	caller, err := g.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	if !RoleIn(caller.Role, allowed...) {
		return nil, ErrForbidden.WithMetadata(map[string]any{
			"role":     caller.Role,
			"required": allowed,
		})
	}

	return caller, nil
}
