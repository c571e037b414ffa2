// Package errors defines the typed error kinds surfaced by the ledger and its callers.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an entity or relationship is absent (or hidden from the actor).
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeForbidden indicates the actor is a party to the entity but lacks the required role.
	ErrCodeForbidden ErrorCode = "forbidden"
	// ErrCodeInvalidState indicates the requested transition is illegal from the current status.
	ErrCodeInvalidState ErrorCode = "invalid_state"
	// ErrCodeOutstandingWork indicates contract completion is blocked by unresolved work.
	ErrCodeOutstandingWork ErrorCode = "outstanding_work"
	// ErrCodeOpenIntervalExists indicates a worker already has an open time entry on the contract.
	ErrCodeOpenIntervalExists ErrorCode = "open_interval_exists"
	// ErrCodeDegenerateInterval indicates a time interval shorter than the billable floor.
	ErrCodeDegenerateInterval ErrorCode = "degenerate_interval"
	// ErrCodeAlreadySettled marks an idempotent settlement no-op.
	ErrCodeAlreadySettled ErrorCode = "already_settled"
	// ErrCodeGateway indicates the external payment gateway failed.
	ErrCodeGateway ErrorCode = "gateway"

	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeForeignKey indicates a foreign key constraint violation.
	ErrCodeForeignKey ErrorCode = "foreign_key"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with the given code and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError { return Newf(ErrCodeNotFound, format, args...) }

// Forbidden creates a new Forbidden error.
func Forbidden(message string) *AppError { return New(ErrCodeForbidden, message) }

// InvalidState creates a new InvalidState error.
func InvalidState(message string) *AppError { return New(ErrCodeInvalidState, message) }

// InvalidStatef creates a new InvalidState error with formatted message.
func InvalidStatef(format string, args ...any) *AppError {
	return Newf(ErrCodeInvalidState, format, args...)
}

// OutstandingWork creates a new OutstandingWork error.
func OutstandingWork(message string) *AppError { return New(ErrCodeOutstandingWork, message) }

// OpenIntervalExists creates a new OpenIntervalExists error.
func OpenIntervalExists(message string) *AppError {
	return New(ErrCodeOpenIntervalExists, message)
}

// DegenerateInterval creates a new DegenerateInterval error.
func DegenerateInterval(message string) *AppError {
	return New(ErrCodeDegenerateInterval, message)
}

// AlreadySettled creates a new AlreadySettled marker.
func AlreadySettled(message string) *AppError { return New(ErrCodeAlreadySettled, message) }

// Gateway wraps a payment gateway failure.
func Gateway(err error, message string) *AppError { return Wrap(err, ErrCodeGateway, message) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

// Conflictf creates a new Conflict error with formatted message.
func Conflictf(format string, args ...any) *AppError { return Newf(ErrCodeConflict, format, args...) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// ForeignKey creates a new ForeignKey error.
func ForeignKey(message string) *AppError { return New(ErrCodeForeignKey, message) }

// Internal creates a new Internal error.
func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError { return Newf(ErrCodeInternal, format, args...) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsForbidden checks if an error is a Forbidden error.
func IsForbidden(err error) bool { return isCode(err, ErrCodeForbidden) }

// IsInvalidState checks if an error is an InvalidState error.
func IsInvalidState(err error) bool { return isCode(err, ErrCodeInvalidState) }

// IsOutstandingWork checks if an error is an OutstandingWork error.
func IsOutstandingWork(err error) bool { return isCode(err, ErrCodeOutstandingWork) }

// IsOpenIntervalExists checks if an error is an OpenIntervalExists error.
func IsOpenIntervalExists(err error) bool { return isCode(err, ErrCodeOpenIntervalExists) }

// IsDegenerateInterval checks if an error is a DegenerateInterval error.
func IsDegenerateInterval(err error) bool { return isCode(err, ErrCodeDegenerateInterval) }

// IsAlreadySettled reports whether err is the idempotent settlement no-op.
func IsAlreadySettled(err error) bool { return isCode(err, ErrCodeAlreadySettled) }

// IsGateway checks if an error is a Gateway error.
func IsGateway(err error) bool { return isCode(err, ErrCodeGateway) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsForeignKey checks if an error is a ForeignKey error.
func IsForeignKey(err error) bool { return isCode(err, ErrCodeForeignKey) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
