package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims are the claims carried by an access token. The role claim is a
// hint for collaborators; the Gate always resolves the current role from the
// user record, so a stale claim never widens access.
type AccessClaims struct {
	jwt.RegisteredClaims
	UID      string   `json:"uid,omitempty"`
	UserRole UserRole `json:"role,omitempty"`
}

// UserID returns the token owner's id
func (c *AccessClaims) UserID() (uuid.UUID, error) {
	if c.UID != "" {
		return uuid.Parse(c.UID)
	}
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// Role returns the role snapshot baked in at issuance
func (c *AccessClaims) Role() UserRole {
	return c.UserRole
}

// JTI returns the token identifier tying the token to its session row
func (c *AccessClaims) JTI() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *AccessClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *AccessClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
