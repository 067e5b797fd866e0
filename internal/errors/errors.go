package errors

import (
	"fmt"
)

// RadarError is the structured error type for radar.
// It provides rich context for error handling, logging, and user presentation.
type RadarError struct {
	// Code is the unique error code (e.g., "ERR_301_BACKEND_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RadarError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RadarError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RadarError.
func (e *RadarError) Is(target error) bool {
	if t, ok := target.(*RadarError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RadarError) WithDetail(key, value string) *RadarError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RadarError) WithSuggestion(suggestion string) *RadarError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RadarError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RadarError {
	return &RadarError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RadarError from an existing error.
// The error's message becomes the RadarError message.
func Wrap(code string, err error) *RadarError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RadarError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// BackendUnavailable creates an embedding-backend unavailability error.
// These are always retryable and recovered locally via fallback embeddings.
func BackendUnavailable(message string, cause error) *RadarError {
	return New(ErrCodeBackendUnavailable, message, cause)
}

// CheckpointWriteError creates a checkpoint persistence error.
// Fatal to the current cycle for the affected source only.
func CheckpointWriteError(message string, cause error) *RadarError {
	return New(ErrCodeCheckpointWrite, message, cause)
}

// CorruptionError creates an index-corruption error. The index recovers by
// truncating to the valid prefix, so this surfaces as a warning.
func CorruptionError(message string, cause error) *RadarError {
	return New(ErrCodeIndexCorruption, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RadarError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RadarError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a RadarError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RadarError); ok {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if re, ok := err.(*RadarError); ok {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a RadarError.
// Returns empty string if not a RadarError.
func GetCode(err error) string {
	if re, ok := err.(*RadarError); ok {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RadarError.
// Returns empty string if not a RadarError.
func GetCategory(err error) Category {
	if re, ok := err.(*RadarError); ok {
		return re.Category
	}
	return ""
}
