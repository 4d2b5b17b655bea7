package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// CodeIssuer is the side channel registration uses to kick off email
// verification; Verifier implements it.
type CodeIssuer interface {
	Issue(ctx context.Context, email string, purpose CodePurpose) error
}

// RegisterMessage is the registration payload
type RegisterMessage struct {
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Name      string   `json:"name"`
	Role      UserRole `json:"role"`
	Language  string   `json:"language"`
	UseHashID bool     `json:"-"`
}

// Validate applies the payload rules before any storage work happens
func (m RegisterMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required, validation.Length(8, 72)),
		validation.Field(&m.Name, validation.Required, validation.Length(1, 120)),
	)
}

// Accounts owns user records and password hashes
type Accounts struct {
	stores Stores
	cfg    Config
	issuer CodeIssuer
	logger Logger
	now    func() time.Time
}

// AccountsOption customizes Accounts construction
type AccountsOption func(*Accounts)

// WithAccountsLogger overrides the logger
func WithAccountsLogger(logger Logger) AccountsOption {
	return func(a *Accounts) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAccountsClock injects a custom clock
func WithAccountsClock(clock func() time.Time) AccountsOption {
	return func(a *Accounts) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithCodeIssuer wires the verification side channel fired after registration
func WithCodeIssuer(issuer CodeIssuer) AccountsOption {
	return func(a *Accounts) {
		if issuer != nil {
			a.issuer = issuer
		}
	}
}

// NewAccounts returns the credential store service
func NewAccounts(stores Stores, cfg Config, opts ...AccountsOption) *Accounts {
	a := &Accounts{
		stores: stores,
		cfg:    cfg,
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// Register creates a user with a hashed password and the requested initial
// role (student when omitted). The duplicate check rides on the storage
// uniqueness constraint, not a prior read: under concurrent registration
// exactly one caller wins and the rest get ErrDuplicateEmail.
func (a *Accounts) Register(ctx context.Context, msg RegisterMessage) (*User, error) {
	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration payload")
	}

	role := msg.Role
	if role == "" {
		role = RoleStudent
	}
	if !IsValidRole(role) || role == RoleAdmin {
		return nil, goerrors.New("invalid initial role", goerrors.CategoryValidation).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": msg.Role})
	}

	hash, err := HashPasswordCost(msg.Password, a.cfg.GetBcryptCost())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := a.now()
	user := &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(msg.Email),
		PasswordHash: hash,
		Name:         msg.Name,
		Role:         role,
		Status:       UserStatusActive,
		Language:     msg.Language,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if msg.UseHashID {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
		}
	}

	created, err := a.stores.Users().Create(ctx, user)
	if err != nil {
		if IsDuplicateEmail(err) {
			return nil, err
		}
		return nil, wrapStorage(err, "failed to create user")
	}

	a.sendVerification(created.Email)

	return created, nil
}

// Authenticate verifies the password for the normalized email. Unknown email
// and wrong password return the identical ErrInvalidCredentials; a disabled
// account is only revealed after the password matched.
func (a *Accounts) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := a.stores.Users().GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, wrapStorage(err, "failed to look up user during authentication")
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if IsInvalidCredentials(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password comparison failed")
	}

	user.EnsureStatus()
	if user.IsDisabled() {
		return nil, ErrAccountDisabled
	}

	return user, nil
}

// UpdateProfile partially updates the mutable profile fields. Email and role
// are not reachable through this path.
func (a *Accounts) UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*User, error) {
	if patch.Name == nil && patch.Language == nil {
		user, err := a.stores.Users().GetByID(ctx, userID)
		if err != nil {
			if IsNotFound(err) {
				return nil, err
			}
			return nil, wrapStorage(err, "failed to load user")
		}
		return user, nil
	}

	if patch.Name != nil {
		if err := validation.Validate(*patch.Name, validation.Required, validation.Length(1, 120)); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid name")
		}
	}

	updated, err := a.stores.Users().UpdateProfile(ctx, userID, patch)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, wrapStorage(err, "failed to update profile")
	}

	return updated, nil
}

// CompleteReset redeems a password reset code and swaps the stored hash. The
// redemption is atomic in the store, so a code can complete at most one reset.
func (a *Accounts) CompleteReset(ctx context.Context, email, code, newPassword string) error {
	if err := validation.Validate(newPassword, validation.Required, validation.Length(8, 72)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password")
	}

	normalized := NormalizeEmail(email)

	if err := a.stores.Codes().Redeem(ctx, normalized, code, PurposePasswordReset, a.now()); err != nil {
		if IsInvalidCode(err) {
			return err
		}
		return wrapStorage(err, "failed to redeem reset code")
	}

	user, err := a.stores.Users().GetByEmail(ctx, normalized)
	if err != nil {
		if IsNotFound(err) {
			// a code existed for an email with no account; treat like a bad code
			return ErrInvalidCode
		}
		return wrapStorage(err, "failed to look up user during password reset")
	}

	hash, err := HashPasswordCost(newPassword, a.cfg.GetBcryptCost())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash new password")
	}

	if err := a.stores.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		if IsNotFound(err) {
			return err
		}
		return wrapStorage(err, "failed to store new password hash")
	}

	return nil
}

// SetStatus is the administrative status flip (active/disabled). The actor
// must currently hold the admin role.
func (a *Accounts) SetStatus(ctx context.Context, actorID, userID uuid.UUID, status UserStatus) (*User, error) {
	if !IsValidUserStatus(status) {
		return nil, goerrors.New("invalid user status", goerrors.CategoryValidation).
			WithTextCode("INVALID_STATUS").
			WithMetadata(map[string]any{"status": status})
	}

	actor, err := a.stores.Users().GetByID(ctx, actorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrForbidden
		}
		return nil, wrapStorage(err, "failed to look up actor")
	}

	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}

	updated, err := a.stores.Users().UpdateStatus(ctx, userID, status)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, wrapStorage(err, "failed to update user status")
	}

	return updated, nil
}

// sendVerification fires the registration code through the side channel
// without blocking or failing the registration.
func (a *Accounts) sendVerification(email string) {
	if a.issuer == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.issuer.Issue(ctx, email, PurposeRegister); err != nil {
			a.logger.Warn("registration verification issue failed", "email", email, "error", err)
		}
	}()
}
