package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfilePatch is a partial update of the mutable profile fields. Email and
// role never change through this path.
type ProfilePatch struct {
	Name     *string
	Language *string
}

// UserStore persists users. Create must be backed by a uniqueness constraint
// on the normalized email: under concurrent registration exactly one insert
// wins and the rest return ErrDuplicateEmail.
type UserStore interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// CodeStore persists verification codes. Redeem is a single conditional
// write: it marks the matching unused, unexpired row as used and returns
// ErrInvalidCode when nothing matched, so two concurrent redemptions of the
// same code cannot both succeed.
type CodeStore interface {
	Save(ctx context.Context, code *VerificationCode) error
	Redeem(ctx context.Context, email, code string, purpose CodePurpose, now time.Time) error
}

// SessionStore persists revocable session rows. Replace atomically deletes
// the row matching oldTokenHash and inserts next; when the old row is gone
// (rotation race, logout) it returns ErrInvalidToken so only one concurrent
// refresh wins.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	Replace(ctx context.Context, oldTokenHash string, next *Session) error
	DeleteByJTI(ctx context.Context, jti string) error
	ExistsByJTI(ctx context.Context, jti string) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RoleApplicationStore persists role applications and their audit trail.
//
// CreatePending inserts the application and its none->pending history entry
// together; a conditional write on the pending-per-user slot guarantees at
// most one pending application per user (ErrDuplicatePendingApplication for
// the losers of the race).
//
// Transition applies a guarded update: the row must still be in entry's
// FromStatus or ErrInvalidTransition is returned. It appends the history
// entry and, when promote is non-empty, writes the owning user's role in the
// same storage transaction.
type RoleApplicationStore interface {
	CreatePending(ctx context.Context, app *RoleApplication, entry *RoleApplicationHistoryEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*RoleApplication, error)
	ListPending(ctx context.Context) ([]*RoleApplication, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*RoleApplication, error)
	Transition(ctx context.Context, app *RoleApplication, entry *RoleApplicationHistoryEntry, promote UserRole) error
	History(ctx context.Context, applicationID uuid.UUID) ([]*RoleApplicationHistoryEntry, error)
}

// Stores exposes all aggregate stores; adapters implement it as a unit so a
// backend can share one connection and one transaction scope.
type Stores interface {
	Users() UserStore
	Codes() CodeStore
	Sessions() SessionStore
	RoleApplications() RoleApplicationStore
}

// Notifier is the external notification sender collaborator. Delivery is
// fire-and-forget: failures are logged by the caller and never block or fail
// the triggering operation.
type Notifier interface {
	Send(ctx context.Context, email string, purpose CodePurpose, code string) error
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, string, CodePurpose, string) error { return nil }
