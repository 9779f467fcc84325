package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrServerMisconfigured = errors.New("server misconfigured")
	ErrUpstream            = errors.New("upstream service failure")
)

// FlowError is a specific, user-presentable failure. Kind is one of the
// sentinels above, so errors.Is matches both the FlowError value and its kind.
type FlowError struct {
	Kind    error
	Message string
	Details []string
}

func (e *FlowError) Error() string {
	return e.Message
}

func (e *FlowError) Unwrap() error {
	return e.Kind
}

// NewFlowError builds a one-off FlowError, e.g. for password policy failures.
func NewFlowError(kind error, message string, details ...string) *FlowError {
	return &FlowError{Kind: kind, Message: message, Details: details}
}

// Validation failures
var (
	ErrMissingFields    = &FlowError{Kind: ErrBadRequest, Message: "Email, username, and password are required."}
	ErrPasswordMismatch = &FlowError{Kind: ErrBadRequest, Message: "Passwords do not match."}
	ErrWeakPassword     = &FlowError{Kind: ErrBadRequest, Message: "Password does not meet requirements"}
	ErrAlreadyVerified  = &FlowError{Kind: ErrBadRequest, Message: "Email already verified."}
	ErrNoPendingCode    = &FlowError{Kind: ErrBadRequest, Message: "No code found. Please request a new one."}
	ErrCodeMismatch     = &FlowError{Kind: ErrBadRequest, Message: "Invalid code."}
	ErrCodeExpired      = &FlowError{Kind: ErrBadRequest, Message: "Code expired. Please request a new one."}
)

// Conflicts
var (
	ErrDuplicateEmail    = &FlowError{Kind: ErrConflict, Message: "Email already registered"}
	ErrDuplicateUsername = &FlowError{Kind: ErrConflict, Message: "Username already registered"}
	ErrReservedUsername  = &FlowError{Kind: ErrConflict, Message: "Username is reserved"}
)

// Authentication and authorization failures. Token failures share one
// external message; only logs tell them apart.
var (
	ErrInvalidCredentials = &FlowError{Kind: ErrUnauthorized, Message: "Invalid username or password"}
	ErrInvalidToken       = &FlowError{Kind: ErrUnauthorized, Message: "Invalid or expired token"}
	ErrTokenExpired       = &FlowError{Kind: ErrUnauthorized, Message: "Invalid or expired token"}
	ErrBotCheckFailed     = &FlowError{Kind: ErrForbidden, Message: "reCAPTCHA verification failed"}
	ErrCSRFInvalid        = &FlowError{Kind: ErrForbidden, Message: "Invalid CSRF token"}
	ErrAdminRequired      = &FlowError{Kind: ErrForbidden, Message: "Admin access required"}
	ErrProtectedAccount   = &FlowError{Kind: ErrForbidden, Message: "Cannot delete admin user"}
)

// Lookup failures
var (
	ErrUserNotFound = &FlowError{Kind: ErrNotFound, Message: "User not found."}
)

// Public maps an arbitrary error to a FlowError that is safe to show.
// Unknown errors collapse to a generic internal failure.
func Public(err error) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, ErrRateLimitExceeded):
		return &FlowError{Kind: ErrRateLimitExceeded, Message: "Too many requests. Please try again later."}
	case errors.Is(err, ErrUpstream):
		return &FlowError{Kind: ErrUpstream, Message: "An external service is unavailable. Please try again later."}
	case errors.Is(err, ErrServerMisconfigured):
		return &FlowError{Kind: ErrServerMisconfigured, Message: "Server configuration error"}
	case errors.Is(err, ErrNotFound):
		return &FlowError{Kind: ErrNotFound, Message: "Resource not found"}
	case errors.Is(err, ErrUnauthorized):
		return &FlowError{Kind: ErrUnauthorized, Message: "Unauthorized"}
	case errors.Is(err, ErrForbidden):
		return &FlowError{Kind: ErrForbidden, Message: "Forbidden"}
	case errors.Is(err, ErrConflict):
		return &FlowError{Kind: ErrConflict, Message: "Resource already exists"}
	case errors.Is(err, ErrBadRequest):
		return &FlowError{Kind: ErrBadRequest, Message: "Invalid request"}
	}
	return &FlowError{Kind: ErrInternalServer, Message: "Internal server error"}
}
