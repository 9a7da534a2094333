package errors

import "net/http"

// ErrorCode represents the type of error
type ErrorCode string

const (
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrValidation     ErrorCode = "VALIDATION_ERROR"
	ErrBadRequest     ErrorCode = "BAD_REQUEST"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
	ErrTimeout        ErrorCode = "TIMEOUT"

	// Feed and reputation engine
	ErrInvalidCursor    ErrorCode = "INVALID_CURSOR"
	ErrFeedUnavailable  ErrorCode = "FEED_UNAVAILABLE"
	ErrScoreUnavailable ErrorCode = "SCORE_UNAVAILABLE"
)

// StatusCodeMap maps ErrorCode to HTTP status code
var StatusCodeMap = map[ErrorCode]int{
	ErrNotFound:         http.StatusNotFound,
	ErrUnauthorized:     http.StatusUnauthorized,
	ErrValidation:       http.StatusBadRequest,
	ErrBadRequest:       http.StatusBadRequest,
	ErrInternalError:    http.StatusInternalServerError,
	ErrRateLimited:      http.StatusTooManyRequests,
	ErrServiceUnavail:   http.StatusServiceUnavailable,
	ErrTimeout:          http.StatusGatewayTimeout,
	ErrInvalidCursor:    http.StatusBadRequest,
	ErrFeedUnavailable:  http.StatusServiceUnavailable,
	ErrScoreUnavailable: http.StatusServiceUnavailable,
}

// StatusCode returns the HTTP status code for this error code
func (e ErrorCode) StatusCode() int {
	if code, ok := StatusCodeMap[e]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Retryable reports whether clients should retry the same request.
func (e ErrorCode) Retryable() bool {
	switch e {
	case ErrFeedUnavailable, ErrScoreUnavailable, ErrServiceUnavail, ErrTimeout, ErrRateLimited:
		return true
	}
	return false
}
