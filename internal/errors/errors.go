package errors

import (
	"fmt"
)

// APIError represents a standardized API error response
type APIError struct {
	Code      ErrorCode `json:"error"`
	Message   string    `json:"message"`
	Field     string    `json:"field,omitempty"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Status    int       `json:"-"`
	cause     error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field: %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying domain error, if any.
func (e *APIError) Unwrap() error {
	return e.cause
}

func newAPIError(code ErrorCode, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Status:    code.StatusCode(),
		Retryable: code.Retryable(),
	}
}

// NotFound creates a NOT_FOUND error
func NotFound(resource string) *APIError {
	return newAPIError(ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// Unauthorized creates an UNAUTHORIZED error
func Unauthorized(message string) *APIError {
	return newAPIError(ErrUnauthorized, message)
}

// ValidationError creates a VALIDATION_ERROR naming the offending field
func ValidationError(field, message string) *APIError {
	e := newAPIError(ErrValidation, message)
	e.Field = field
	return e
}

// BadRequest creates a BAD_REQUEST error
func BadRequest(message string) *APIError {
	return newAPIError(ErrBadRequest, message)
}

// InternalError creates an INTERNAL_ERROR error
func InternalError(message string) *APIError {
	return newAPIError(ErrInternalError, message)
}

// RateLimited creates a RATE_LIMITED error
func RateLimited(message string) *APIError {
	return newAPIError(ErrRateLimited, message)
}

// ServiceUnavailable creates a SERVICE_UNAVAILABLE error
func ServiceUnavailable(service string) *APIError {
	return newAPIError(ErrServiceUnavail, fmt.Sprintf("%s is temporarily unavailable", service))
}

// Timeout creates a TIMEOUT error
func Timeout(operation string) *APIError {
	return newAPIError(ErrTimeout, fmt.Sprintf("%s timed out", operation))
}

// InvalidCursor rejects a malformed or stale pagination cursor.
func InvalidCursor() *APIError {
	e := newAPIError(ErrInvalidCursor, "pagination cursor is invalid or expired")
	e.Field = "cursor"
	return e
}

// FeedUnavailable reports that no feed source could be read.
func FeedUnavailable() *APIError {
	return newAPIError(ErrFeedUnavailable, "feed is temporarily unavailable, retry the request")
}

// ScoreUnavailable reports that a user's reputation could not be computed.
func ScoreUnavailable(userID string) *APIError {
	return newAPIError(ErrScoreUnavailable, fmt.Sprintf("reputation for %s is temporarily unavailable", userID))
}

// WithDetails adds details to an error
func (e *APIError) WithDetails(details string) *APIError {
	e.Details = details
	return e
}

// WithCause attaches the underlying error for errors.Is and logging.
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}
