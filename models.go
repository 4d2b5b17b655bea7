package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the user's account status
type UserStatus = string

const (
	// UserStatusActive is the normal, usable account state
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled blocks authentication without deleting the record
	UserStatusDisabled UserStatus = "disabled"
)

// IsValidUserStatus checks the status against the known set
func IsValidUserStatus(s UserStatus) bool {
	return s == UserStatusActive || s == UserStatusDisabled
}

// User is the identity anchor. Exactly one non-deleted user exists per
// normalized email; the storage layer enforces this with a uniqueness
// constraint. Role is mutated only at registration and by an approved role
// application; status flips to disabled instead of hard deletion.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Role          UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	Language      string     `bun:"language" json:"language,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value so older rows behave as active
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsDisabled reports whether authentication should be refused
func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

// NormalizeEmail lower-cases and trims an email address. Every lookup and
// every stored email goes through this, so the uniqueness constraint operates
// on the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CodePurpose scopes a verification code to a single flow
type CodePurpose = string

const (
	// PurposeRegister proves email control during registration
	PurposeRegister CodePurpose = "register"
	// PurposeLogin is a login step-up challenge
	PurposeLogin CodePurpose = "login"
	// PurposePasswordReset authorizes a password change
	PurposePasswordReset CodePurpose = "password_reset"
)

// IsValidCodePurpose checks the purpose against the known set
func IsValidCodePurpose(p CodePurpose) bool {
	switch p {
	case PurposeRegister, PurposeLogin, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// VerificationCode is an ephemeral credential proof. Redeemable at most once,
// only before expiry, and only for the purpose it was issued for.
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vc"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string      `bun:"email,notnull" json:"email,omitempty"`
	Code          string      `bun:"code,notnull" json:"code,omitempty"`
	Purpose       CodePurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	ExpiresAt     time.Time   `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	Used          bool        `bun:"used,notnull,default:false" json:"used,omitempty"`
	CreatedAt     time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Session is the revocable proof of an issued token pair. TokenJTI ties the
// access token to the row; TokenHash stores a sha256 of the refresh token,
// never the raw value. Logout deletes the row, refresh replaces it.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	TokenJTI      string    `bun:"token_jti,notnull,unique" json:"token_jti,omitempty"`
	TokenHash     string    `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired evaluates the stored expiry against the given instant. Expiry is
// always decided at read time; a reaper is housekeeping, not a correctness
// requirement.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// ApplicationStatus is the role application lifecycle state
type ApplicationStatus = string

const (
	// ApplicationPending is the initial, only non-terminal state
	ApplicationPending ApplicationStatus = "pending"
	// ApplicationApproved grants the requested role
	ApplicationApproved ApplicationStatus = "approved"
	// ApplicationRejected denies the request, role unchanged
	ApplicationRejected ApplicationStatus = "rejected"
	// ApplicationCancelled is a withdrawal by the applicant
	ApplicationCancelled ApplicationStatus = "cancelled"
)

// IsTerminalApplicationStatus reports whether no further transition is allowed
func IsTerminalApplicationStatus(s ApplicationStatus) bool {
	switch s {
	case ApplicationApproved, ApplicationRejected, ApplicationCancelled:
		return true
	default:
		return false
	}
}

// RoleApplication is one in-flight or resolved request to change role.
// At most one pending application exists per user; terminal rows are retained
// for audit and never deleted.
type RoleApplication struct {
	bun.BaseModel `bun:"table:role_applications,alias:rapp"`
	ID            uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID         `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Role          UserRole          `bun:"requested_role,notnull" json:"requested_role,omitempty"`
	Reason        *string           `bun:"reason" json:"reason,omitempty"`
	Status        ApplicationStatus `bun:"status,notnull" json:"status,omitempty"`
	ReviewerID    *uuid.UUID        `bun:"reviewer_id,type:uuid" json:"reviewer_id,omitempty"`
	Comment       *string           `bun:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     time.Time         `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsPending reports whether the application can still transition
func (a *RoleApplication) IsPending() bool {
	return a.Status == ApplicationPending
}

// RoleApplicationHistoryEntry is the append-only audit record of one state
// transition. FromStatus is empty for the creating none->pending entry.
// Entries are written exactly once per transition and never mutated.
type RoleApplicationHistoryEntry struct {
	bun.BaseModel `bun:"table:role_application_history,alias:raph"`
	ID            uuid.UUID         `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ApplicationID uuid.UUID         `bun:"application_id,notnull,type:uuid" json:"application_id,omitempty"`
	FromStatus    ApplicationStatus `bun:"from_status" json:"from_status,omitempty"`
	ToStatus      ApplicationStatus `bun:"to_status,notnull" json:"to_status,omitempty"`
	ActorID       uuid.UUID         `bun:"actor_id,notnull,type:uuid" json:"actor_id,omitempty"`
	Comment       *string           `bun:"comment" json:"comment,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// normalizeComment treats empty strings as "no comment" and stores them as
// absent. The rule is deterministic on purpose: "" and NULL never coexist.
func normalizeComment(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func newHistoryEntry(app *RoleApplication, from, to ApplicationStatus, actor uuid.UUID, comment *string, at time.Time) *RoleApplicationHistoryEntry {
	return &RoleApplicationHistoryEntry{
		ID:            uuid.New(),
		ApplicationID: app.ID,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actor,
		Comment:       comment,
		CreatedAt:     at,
	}
}
