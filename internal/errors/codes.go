// Package errors defines the structured error types surfaced by the engine.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific error class for engine operations.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates malformed or out-of-range field values.
	// Rejected before any mutation is applied and never retried.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotFound indicates the operation targets an unknown or purged id.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeConflict indicates a concurrent writer already advanced the
	// entity's version. The caller must re-fetch and retry.
	ErrCodeConflict ErrorCode = "CONFLICT"
	// ErrCodeBackendUnavailable indicates an I/O failure talking to the store.
	// Retried a bounded number of times at the repository boundary.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeCacheInvariant indicates an internal cache bug, e.g. an entry
	// with a negative remaining TTL. Self-heals by eviction; logged, never
	// returned to the end caller.
	ErrCodeCacheInvariant ErrorCode = "CACHE_INVARIANT"
)

// EngineError represents a structured error for engine operations.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// InvalidArgument creates a validation error.
func InvalidArgument(format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates an optimistic-lock conflict error.
func Conflict(format string, args ...any) *EngineError {
	return &EngineError{Code: ErrCodeConflict, Message: fmt.Sprintf(format, args...)}
}

// BackendUnavailable creates a retryable backend error.
func BackendUnavailable(msg string, cause error) *EngineError {
	return &EngineError{Code: ErrCodeBackendUnavailable, Message: msg, Cause: cause}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var engineErr *EngineError
	if stderrors.As(err, &engineErr) {
		return engineErr.Code == code
	}
	return false
}

// Retryable reports whether the operation that produced err may be retried.
func Retryable(err error) bool {
	return IsCode(err, ErrCodeBackendUnavailable) || IsCode(err, ErrCodeConflict)
}
