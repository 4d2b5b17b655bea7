package identity

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Decision is an admin's resolution of a pending application
type Decision = string

const (
	// DecisionApproved grants the requested role
	DecisionApproved Decision = "approved"
	// DecisionRejected denies the request
	DecisionRejected Decision = "rejected"
)

// ApplyMessage is the role application payload
type ApplyMessage struct {
	UserID uuid.UUID `json:"user_id"`
	Role   UserRole  `json:"role"`
	Reason string    `json:"reason"`
}

// Validate applies the payload rules
func (m ApplyMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Role, validation.Required),
		validation.Field(&m.Reason, validation.Length(0, 2000)),
	)
}

// ApplicationDetail is the read model for a single application plus its
// complete audit trail.
type ApplicationDetail struct {
	Application *RoleApplication               `json:"application"`
	History     []*RoleApplicationHistoryEntry `json:"history"`
}

// RoleOverview is the self-service "my roles" read model
type RoleOverview struct {
	CurrentRole        UserRole           `json:"current_role"`
	PendingApplication *RoleApplication   `json:"pending_application"`
	Applications       []*RoleApplication `json:"applications"`
}

// RoleApplications drives the role-upgrade workflow through
// pending -> approved | rejected | cancelled. Every transition appends
// exactly one history entry; terminal states never transition again. The
// approve path is the only writer of User.Role outside registration.
type RoleApplications struct {
	stores      Stores
	logger      Logger
	now         func() time.Time
	transitions map[ApplicationStatus]map[ApplicationStatus]struct{}
}

// RoleApplicationsOption customizes construction
type RoleApplicationsOption func(*RoleApplications)

// WithApplicationsLogger overrides the logger
func WithApplicationsLogger(logger Logger) RoleApplicationsOption {
	return func(r *RoleApplications) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithApplicationsClock injects a custom clock
func WithApplicationsClock(clock func() time.Time) RoleApplicationsOption {
	return func(r *RoleApplications) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewRoleApplications returns the role application state machine
func NewRoleApplications(stores Stores, opts ...RoleApplicationsOption) *RoleApplications {
	r := &RoleApplications{
		stores: stores,
		logger: defLogger{},
		now:    time.Now,
		transitions: map[ApplicationStatus]map[ApplicationStatus]struct{}{
			ApplicationPending: {
				ApplicationApproved:  {},
				ApplicationRejected:  {},
				ApplicationCancelled: {},
			},
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

func (r *RoleApplications) canTransition(from, to ApplicationStatus) bool {
	if allowed, ok := r.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Apply opens a new application for the user. The one-pending-per-user
// invariant rides on the store's conditional insert, so concurrent duplicate
// submissions resolve to exactly one winner.
func (r *RoleApplications) Apply(ctx context.Context, msg ApplyMessage) (*RoleApplication, error) {
	if err := msg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid role application payload")
	}

	if !IsRequestableRole(msg.Role) {
		return nil, goerrors.New("role cannot be requested", goerrors.CategoryValidation).
			WithTextCode("INVALID_REQUESTED_ROLE").
			WithMetadata(map[string]any{"role": msg.Role})
	}

	user, err := r.stores.Users().GetByID(ctx, msg.UserID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage(err, "failed to load applicant")
	}

	if user.Role == msg.Role {
		return nil, goerrors.New("user already holds the requested role", goerrors.CategoryValidation).
			WithTextCode("ROLE_ALREADY_HELD").
			WithMetadata(map[string]any{"role": msg.Role})
	}

	now := r.now()
	app := &RoleApplication{
		ID:        uuid.New(),
		UserID:    user.ID,
		Role:      msg.Role,
		Reason:    normalizeComment(msg.Reason),
		Status:    ApplicationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	entry := newHistoryEntry(app, "", ApplicationPending, user.ID, app.Reason, now)

	if err := r.stores.RoleApplications().CreatePending(ctx, app, entry); err != nil {
		if IsDuplicatePendingApplication(err) {
			return nil, err
		}
		return nil, wrapStorage(err, "failed to create application")
	}

	return app, nil
}

// Cancel withdraws a pending application. Only the owner may cancel; another
// user's application, a missing id, and an already-terminal application all
// return the same ErrNotFound so existence is never disclosed.
func (r *RoleApplications) Cancel(ctx context.Context, userID, applicationID uuid.UUID) error {
	app, err := r.stores.RoleApplications().GetByID(ctx, applicationID)
	if err != nil {
		if IsNotFound(err) {
			return ErrNotFound
		}
		return wrapStorage(err, "failed to load application")
	}

	if app.UserID != userID || !app.IsPending() {
		return ErrNotFound
	}

	now := r.now()
	from := app.Status
	app.Status = ApplicationCancelled
	app.UpdatedAt = now

	entry := newHistoryEntry(app, from, ApplicationCancelled, userID, nil, now)

	if err := r.stores.RoleApplications().Transition(ctx, app, entry, ""); err != nil {
		if IsInvalidTransition(err) {
			// resolved concurrently; same uniform answer as a terminal row
			return ErrNotFound
		}
		return wrapStorage(err, "failed to cancel application")
	}

	return nil
}

// Approve resolves a pending application. DecisionApproved promotes the
// user's role to the requested role inside the same storage transaction;
// DecisionRejected leaves the role untouched. Admin only.
func (r *RoleApplications) Approve(ctx context.Context, adminID, applicationID uuid.UUID, decision Decision, comment string) (*RoleApplication, error) {
	if err := r.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	var to ApplicationStatus
	switch decision {
	case DecisionApproved:
		to = ApplicationApproved
	case DecisionRejected:
		to = ApplicationRejected
	default:
		return nil, goerrors.New("invalid decision", goerrors.CategoryValidation).
			WithTextCode("INVALID_DECISION").
			WithMetadata(map[string]any{"decision": decision})
	}

	app, err := r.stores.RoleApplications().GetByID(ctx, applicationID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage(err, "failed to load application")
	}

	if !r.canTransition(app.Status, to) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": app.Status,
			"to":   to,
		})
	}

	now := r.now()
	from := app.Status
	app.Status = to
	app.ReviewerID = &adminID
	app.Comment = normalizeComment(comment)
	app.UpdatedAt = now

	promote := UserRole("")
	if to == ApplicationApproved {
		promote = app.Role
	}

	entry := newHistoryEntry(app, from, to, adminID, app.Comment, now)

	if err := r.stores.RoleApplications().Transition(ctx, app, entry, promote); err != nil {
		if IsInvalidTransition(err) {
			return nil, err
		}
		return nil, wrapStorage(err, "failed to resolve application")
	}

	return app, nil
}

// ListPending returns all pending applications, newest first. Admin only.
func (r *RoleApplications) ListPending(ctx context.Context, adminID uuid.UUID) ([]*RoleApplication, error) {
	if err := r.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	apps, err := r.stores.RoleApplications().ListPending(ctx)
	if err != nil {
		return nil, wrapStorage(err, "failed to list pending applications")
	}

	return apps, nil
}

// ListMine returns the user's own applications, newest first
func (r *RoleApplications) ListMine(ctx context.Context, userID uuid.UUID) ([]*RoleApplication, error) {
	apps, err := r.stores.RoleApplications().ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapStorage(err, "failed to list applications")
	}
	return apps, nil
}

// GetDetail returns one application with its history. Owners and admins only;
// everyone else sees the same ErrNotFound a missing id produces.
func (r *RoleApplications) GetDetail(ctx context.Context, actorID, applicationID uuid.UUID) (*ApplicationDetail, error) {
	app, err := r.stores.RoleApplications().GetByID(ctx, applicationID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage(err, "failed to load application")
	}

	if app.UserID != actorID {
		if err := r.requireAdmin(ctx, actorID); err != nil {
			return nil, ErrNotFound
		}
	}

	history, err := r.stores.RoleApplications().History(ctx, app.ID)
	if err != nil {
		return nil, wrapStorage(err, "failed to load application history")
	}

	return &ApplicationDetail{Application: app, History: history}, nil
}

// Overview returns the user's current role, their pending application if one
// exists, and their full application list, newest first.
func (r *RoleApplications) Overview(ctx context.Context, userID uuid.UUID) (*RoleOverview, error) {
	user, err := r.stores.Users().GetByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, wrapStorage(err, "failed to load user")
	}

	apps, err := r.stores.RoleApplications().ListByUser(ctx, userID)
	if err != nil {
		return nil, wrapStorage(err, "failed to list applications")
	}

	overview := &RoleOverview{
		CurrentRole:  user.Role,
		Applications: apps,
	}

	for _, app := range apps {
		if app.IsPending() {
			overview.PendingApplication = app
			break
		}
	}

	return overview, nil
}

func (r *RoleApplications) requireAdmin(ctx context.Context, actorID uuid.UUID) error {
	actor, err := r.stores.Users().GetByID(ctx, actorID)
	if err != nil {
		if IsNotFound(err) {
			return ErrForbidden
		}
		return wrapStorage(err, "failed to load actor")
	}

	if actor.Role != RoleAdmin {
		return ErrForbidden
	}

	return nil
}
