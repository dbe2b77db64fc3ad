package shared

import "errors"

// Error categories. Concrete errors wrap one of these so callers can branch on
// either the specific failure or its category with errors.Is.
var (
	// ErrValidation marks bad or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated marks requests without a logged-in user.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrPermission marks a failed role or ownership check.
	ErrPermission = errors.New("permission denied")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks uniqueness and state conflicts.
	ErrConflict = errors.New("conflict")
	// ErrExpired marks stale time-limited credentials.
	ErrExpired = errors.New("expired")
	// ErrTransport marks failures talking to an outside service such as SMTP.
	ErrTransport = errors.New("transport failure")
)

var (
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = NewError(ErrValidation, "Invalid email or password")
	// ErrPermissionDenied is the generic role check failure.
	ErrPermissionDenied = NewError(ErrPermission, "You are not allowed to perform this action")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = NewError(ErrPermission, "csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = NewError(ErrPermission, "csrf token mismatch")
	// ErrEmailTaken is returned when an address already belongs to an account.
	ErrEmailTaken = NewError(ErrConflict, "An account with this email already exists")
	// ErrEmailMismatch is returned when a token is presented with the wrong email.
	ErrEmailMismatch = NewError(ErrValidation, "The email address does not match this link")
)

// DomainError carries a user-facing message and a category.
type DomainError struct {
	Kind    error
	Message string
}

// NewError builds a DomainError in the given category.
func NewError(kind error, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Unwrap() error { return e.Kind }

// UserSafeMessage returns a message that can be shown to end users. Unknown
// errors collapse into a generic sentence so internals never leak.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Error()
	}
	var derr *DomainError
	if errors.As(err, &derr) {
		return derr.Message
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested item could not be found"
	case errors.Is(err, ErrPermission):
		return "You are not allowed to perform this action"
	case errors.Is(err, ErrUnauthenticated):
		return "Please log in to access this page"
	}
	return "Something went wrong, please try again"
}
