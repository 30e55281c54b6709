// Package apperrors provides the error taxonomy shared across the
// orchestrator: HTTP-facing error codes, structured construction
// helpers, and errors.As-based classification.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes as constants.
const (
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternalError       = "INTERNAL_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeValidationError     = "VALIDATION_ERROR"
	ErrCodeServiceUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeCapacity            = "CAPACITY"
	ErrCodeGeneratorTransient  = "GENERATOR_TRANSIENT"
	ErrCodeGeneratorFatal      = "GENERATOR_FATAL"
	ErrCodeValidationExhausted = "VALIDATION_EXHAUSTED"
	ErrCodeSnapshotFailure     = "SNAPSHOT_FAILURE"
)

// AppError represents an application-specific error with additional
// context. RetryAfter is populated only for capacity/rate-limit errors
// that carry a server-suggested retry hint.
type AppError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	HTTPStatus int           `json:"http_status"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Err        error         `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for use with errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a new not found error for a resource.
func NotFound(resource string, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id '%s' not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// BadRequest creates a new bad request error.
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// Unauthorized creates a new unauthorized error (principal not in the
// authorization whitelist, or a missing/invalid API key).
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:       ErrCodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a new forbidden error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:       ErrCodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// InternalError creates a new internal server error with a wrapped
// underlying error. Message is the only part ever surfaced to callers.
func InternalError(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Conflict creates a new conflict error (AlreadyCompleted, Duplicate,
// result not yet terminal).
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ValidationError creates a new validation error for a specific field.
func ValidationError(field string, message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationError,
		Message:    fmt.Sprintf("validation failed for field '%s': %s", field, message),
		HTTPStatus: http.StatusBadRequest,
	}
}

// ServiceUnavailable creates a new service unavailable error.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("service '%s' is currently unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Capacity creates a new capacity error: queue full or rate limited.
// retryAfter is zero when no hint is available.
func Capacity(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeCapacity,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
		RetryAfter: retryAfter,
	}
}

// GeneratorTransient wraps a retryable generator failure (network,
// timeout, 5xx, 429) observed only after the generator client's own
// retry budget is exhausted.
func GeneratorTransient(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeGeneratorTransient,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// GeneratorFatal wraps a non-retryable generator failure (unauthorized,
// quota exceeded, model unavailable).
func GeneratorFatal(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeGeneratorFatal,
		Message:    message,
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// ValidationExhausted reports that the validation pipeline used all 3
// permitted full iterations without reaching a clean pass.
func ValidationExhausted(message string) *AppError {
	return &AppError{
		Code:       ErrCodeValidationExhausted,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// SnapshotFailure reports a version-control failure: dirty tree,
// missing tool, or a refused commit/push.
func SnapshotFailure(message string, err error) *AppError {
	return &AppError{
		Code:       ErrCodeSnapshotFailure,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// Wrap wraps an existing error with additional context, returning an
// AppError. If err is already an AppError its code and status are
// preserved.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			RetryAfter: appErr.RetryAfter,
			Err:        err,
		}
	}

	return &AppError{
		Code:       ErrCodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsBadRequest checks if the error is a bad request or validation error.
func IsBadRequest(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeBadRequest || appErr.Code == ErrCodeValidationError
	}
	return false
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeConflict
	}
	return false
}

// IsCapacity checks if the error is a capacity (queue-full / rate-limit) error.
func IsCapacity(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeCapacity
	}
	return false
}

// IsGeneratorTransient checks if the error is a retryable generator error.
func IsGeneratorTransient(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeGeneratorTransient
	}
	return false
}

// GetHTTPStatus returns the HTTP status code for an error. Returns 500
// if the error is not an AppError.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
