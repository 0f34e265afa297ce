// Package errors provides centralized error definitions for the application.
// Errors are organized by domain to avoid duplication and provide consistent naming.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Unexported errors (err*): Use for internal package errors
//   - All sentinel errors should be defined as variables, not inline errors.New calls
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import "errors"

// Generation backend errors.
var (
	// ErrQuotaExhausted indicates a daily request cap was reached for a model group or API.
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrModelNotFound indicates the backend does not know the requested model.
	ErrModelNotFound = errors.New("model not found")

	// ErrAllModelsFailed indicates every candidate in a fallback chain failed.
	ErrAllModelsFailed = errors.New("all models failed")

	// ErrEmptyResponse indicates an empty response was received.
	ErrEmptyResponse = errors.New("empty response")
)

// Validation errors.
var (
	// ErrValidation indicates a generation reply did not match the required schema.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Content errors.
var (
	// ErrContentRejected indicates a document failed the quality gate (paywall, too short).
	ErrContentRejected = errors.New("content rejected")
)

// Coordination errors.
var (
	// ErrLockNotAcquired indicates another worker holds the requested lock.
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Storage errors.
var (
	// ErrNotFound is a generic not found error.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict indicates a status transition out of a terminal state was attempted.
	ErrStatusConflict = errors.New("status transition not allowed")
)

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
