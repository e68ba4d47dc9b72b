package shared

import "errors"

// Error taxonomy for the authorization layer. Handlers translate these into
// HTTP statuses; enforcement points translate them into redirects or UI state.
var (
	// ErrNotFound indicates an unknown role, user, or catalog entry.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a malformed or empty input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a store-level uniqueness violation.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyAssigned is the duplicate role-permission pair form of
	// ErrConflict. Idempotent callers absorb it as a no-op success.
	ErrAlreadyAssigned = errors.New("permission already assigned to role")
	// ErrUnauthenticated indicates no principal could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates the principal lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable indicates the persistent store is not configured or
	// unreachable. Startup succeeds without credentials; calls do not.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCSRFTokenMissing occurs when the CSRF token is absent.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// IsConflict reports whether err is any uniqueness-violation error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyAssigned)
}
