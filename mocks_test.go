package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Create(ctx context.Context, user *User) (*User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserStore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserStore) UpdateProfile(ctx context.Context, id uuid.UUID, patch ProfilePatch) (*User, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserStore) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) (*User, error) {
	args := m.Called(ctx, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockUserStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

type MockCodeStore struct {
	mock.Mock
}

func (m *MockCodeStore) Save(ctx context.Context, code *VerificationCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockCodeStore) Redeem(ctx context.Context, email, code string, purpose CodePurpose, now time.Time) error {
	args := m.Called(ctx, email, code, purpose, now)
	return args.Error(0)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Create(ctx context.Context, session *Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionStore) GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Session), args.Error(1)
}

func (m *MockSessionStore) Replace(ctx context.Context, oldTokenHash string, next *Session) error {
	args := m.Called(ctx, oldTokenHash, next)
	return args.Error(0)
}

func (m *MockSessionStore) DeleteByJTI(ctx context.Context, jti string) error {
	args := m.Called(ctx, jti)
	return args.Error(0)
}

func (m *MockSessionStore) ExistsByJTI(ctx context.Context, jti string) (bool, error) {
	args := m.Called(ctx, jti)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type MockRoleApplicationStore struct {
	mock.Mock
}

func (m *MockRoleApplicationStore) CreatePending(ctx context.Context, app *RoleApplication, entry *RoleApplicationHistoryEntry) error {
	args := m.Called(ctx, app, entry)
	return args.Error(0)
}

func (m *MockRoleApplicationStore) GetByID(ctx context.Context, id uuid.UUID) (*RoleApplication, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*RoleApplication), args.Error(1)
}

func (m *MockRoleApplicationStore) ListPending(ctx context.Context) ([]*RoleApplication, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RoleApplication), args.Error(1)
}

func (m *MockRoleApplicationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*RoleApplication, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RoleApplication), args.Error(1)
}

func (m *MockRoleApplicationStore) Transition(ctx context.Context, app *RoleApplication, entry *RoleApplicationHistoryEntry, promote UserRole) error {
	args := m.Called(ctx, app, entry, promote)
	return args.Error(0)
}

func (m *MockRoleApplicationStore) History(ctx context.Context, applicationID uuid.UUID) ([]*RoleApplicationHistoryEntry, error) {
	args := m.Called(ctx, applicationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RoleApplicationHistoryEntry), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(ctx context.Context, email string, purpose CodePurpose, code string) error {
	args := m.Called(ctx, email, purpose, code)
	return args.Error(0)
}

// mockStores bundles the individual mocks behind the Stores interface
type mockStores struct {
	users    *MockUserStore
	codes    *MockCodeStore
	sessions *MockSessionStore
	apps     *MockRoleApplicationStore
}

func newMockStores() *mockStores {
	return &mockStores{
		users:    &MockUserStore{},
		codes:    &MockCodeStore{},
		sessions: &MockSessionStore{},
		apps:     &MockRoleApplicationStore{},
	}
}

func (s *mockStores) Users() UserStore { return s.users }

func (s *mockStores) Codes() CodeStore { return s.codes }

func (s *mockStores) Sessions() SessionStore { return s.sessions }

func (s *mockStores) RoleApplications() RoleApplicationStore { return s.apps }

var (
	_ UserStore            = (*MockUserStore)(nil)
	_ CodeStore            = (*MockCodeStore)(nil)
	_ SessionStore         = (*MockSessionStore)(nil)
	_ RoleApplicationStore = (*MockRoleApplicationStore)(nil)
	_ Notifier             = (*MockNotifier)(nil)
	_ Stores               = (*mockStores)(nil)
)
