package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidApi      = "INVALID_API"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeVault           = "VAULT_ERROR"
	ErrCodeStore           = "STORE_ERROR"
)

// AppError is the structured error type for spec and argument validation.
// Errors carries the per-parameter sub-messages of an aggregated failure.
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Errors  []string       `json:"errors,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AppError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(e.Errors, "; "))
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AppError.
func NewError(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewErrorf creates a new AppError with a formatted message.
func NewErrorf(code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InvalidApi reports a spec document that is internally inconsistent.
func InvalidApi(format string, args ...any) *AppError {
	return NewErrorf(ErrCodeInvalidApi, format, args...)
}

// InvalidArgument reports a value that failed conversion or validation.
func InvalidArgument(format string, args ...any) *AppError {
	return NewErrorf(ErrCodeInvalidArgument, format, args...)
}

// WithCause attaches an underlying cause.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithErrors attaches the aggregated sub-messages.
func (e *AppError) WithErrors(errs []string) *AppError {
	e.Errors = errs
	return e
}

// HasCode reports whether err is an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsInvalidApi reports whether err is a spec (INVALID_API) error.
func IsInvalidApi(err error) bool { return HasCode(err, ErrCodeInvalidApi) }

// IsInvalidArgument reports whether err is an argument (INVALID_ARGUMENT) error.
func IsInvalidArgument(err error) bool { return HasCode(err, ErrCodeInvalidArgument) }

// Messages returns the aggregated sub-messages of err, or its message when
// it carries none.
func Messages(err error) []string {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		if err == nil {
			return nil
		}
		return []string{err.Error()}
	}
	if len(appErr.Errors) > 0 {
		return appErr.Errors
	}
	return []string{appErr.Message}
}
