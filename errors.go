package identity

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeDuplicateEmail       = "DUPLICATE_EMAIL"
	textCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	textCodeAccountDisabled      = "ACCOUNT_DISABLED"
	textCodeInvalidCode          = "INVALID_CODE"
	textCodeInvalidToken         = "INVALID_TOKEN"
	textCodeUnauthenticated      = "UNAUTHENTICATED"
	textCodeForbidden            = "FORBIDDEN"
	textCodeDuplicatePending     = "DUPLICATE_PENDING_APPLICATION"
	textCodeInvalidTransition    = "INVALID_APPLICATION_TRANSITION"
	textCodeNotFound             = "NOT_FOUND"
	textCodeStorageUnavailable   = "STORAGE_UNAVAILABLE"
)

// ErrDuplicateEmail is returned when registration loses the email uniqueness
// race; exactly one concurrent register wins, the rest see this.
var ErrDuplicateEmail = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicateEmail).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials covers both unknown email and wrong password, so the
// API cannot be used to enumerate registered addresses.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is deliberately distinct from ErrInvalidCredentials:
// login UX must explain a disabled account.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuth).
	WithTextCode(textCodeAccountDisabled)

// ErrInvalidCode is returned when no matching, unused, unexpired verification
// code exists for the email and purpose.
var ErrInvalidCode = goerrors.New("invalid or expired verification code", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidCode).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidToken is returned for refresh attempts with a missing, expired,
// already-rotated, or wrong-kind token.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrUnauthenticated means the caller presented no usable identity (missing,
// malformed, expired, or revoked token). Never conflated with ErrForbidden.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(textCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden means the caller is authenticated but their current role does
// not allow the operation.
var ErrForbidden = goerrors.New("insufficient role for this operation", goerrors.CategoryAuth).
	WithTextCode(textCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicatePendingApplication is returned when a user already has a
// pending role application; enforced by a conditional write, same guarantee
// class as email uniqueness.
var ErrDuplicatePendingApplication = goerrors.New("a pending role application already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicatePending).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when a role application is not in a state
// that allows the requested transition.
var ErrInvalidTransition = goerrors.New("invalid role application transition", goerrors.CategoryConflict).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeConflict)

// ErrNotFound masks both truly missing records and records the caller may not
// see; non-owners cannot distinguish the two.
var ErrNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStorageUnavailable wraps storage failures that do not represent a
// business condition; callers should treat it as retryable.
var ErrStorageUnavailable = goerrors.New("storage unavailable", goerrors.CategoryInternal).
	WithTextCode(textCodeStorageUnavailable)

// IsDuplicateEmail will check for the email uniqueness violation
func IsDuplicateEmail(err error) bool {
	return errors.Is(err, ErrDuplicateEmail)
}

// IsInvalidCredentials will check for the uniform authentication failure
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsAccountDisabled will check for the disabled-account outcome
func IsAccountDisabled(err error) bool {
	return errors.Is(err, ErrAccountDisabled)
}

// IsInvalidCode will check for a failed code redemption
func IsInvalidCode(err error) bool {
	return errors.Is(err, ErrInvalidCode)
}

// IsInvalidToken will check for a failed refresh-token exchange
func IsInvalidToken(err error) bool {
	return errors.Is(err, ErrInvalidToken)
}

// IsUnauthenticated will check for the 401-equivalent gate outcome
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}

// IsForbidden will check for the 403-equivalent gate outcome
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsDuplicatePendingApplication will check for the one-pending-per-user violation
func IsDuplicatePendingApplication(err error) bool {
	return errors.Is(err, ErrDuplicatePendingApplication)
}

// IsInvalidTransition will check for a state machine guard failure
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsNotFound will check for missing or masked records
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStorageUnavailable will check for retryable storage failures
func IsStorageUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// wrapStorage translates an unexpected storage failure into the retryable
// taxonomy kind, keeping the cause attached for logs.
func wrapStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithTextCode(textCodeStorageUnavailable)
}
