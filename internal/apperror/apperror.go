package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes shared by the websocket error event and the REST API
const (
	CodeUnauthorized = "UNAUTHORIZED"
	CodeRateLimited  = "RATE_LIMITED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

// AppError is the error type returned by every coordinator operation that
// rejects a client request.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
}

// NewAppError creates a new AppError
func NewAppError(code, message, details string) *AppError {
	return &AppError{Code: code, Message: message, Details: details}
}

// Authentication is returned for a missing or rejected token at connect time.
func Authentication(details string) *AppError {
	return NewAppError(CodeUnauthorized, "authentication failed", details)
}

// RateLimit names the violated rule and how long the key stays blocked.
func RateLimit(rule string, retryAfter time.Duration) *AppError {
	return NewAppError(CodeRateLimited, "rate limit",
		fmt.Sprintf("rule=%s retryAfter=%s", rule, retryAfter.Round(time.Second)))
}

func Validation(details string) *AppError {
	return NewAppError(CodeValidation, "validation failed", details)
}

func Permission(details string) *AppError {
	return NewAppError(CodeForbidden, "permission denied", details)
}

func NotFound(details string) *AppError {
	return NewAppError(CodeNotFound, "not found", details)
}

func Internal(details string) *AppError {
	return NewAppError(CodeInternal, "internal error", details)
}

// From unwraps err into an AppError. Errors of any other type become
// CodeInternal so their text never leaks to clients.
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("")
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// HTTPStatus maps error codes to HTTP status codes
func HTTPStatus(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeValidation:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
