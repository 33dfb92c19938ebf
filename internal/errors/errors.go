package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error.
type ErrorType string

const (
	ErrorTypeInsufficientData    ErrorType = "INSUFFICIENT_DATA"
	ErrorTypeGeometryUnavailable ErrorType = "GEOMETRY_UNAVAILABLE"
	ErrorTypeEmptyInput          ErrorType = "EMPTY_INPUT"
	ErrorTypeConfig              ErrorType = "CONFIG_ERROR"
	ErrorTypeCapture             ErrorType = "CAPTURE_ERROR"
	ErrorTypeOutput              ErrorType = "OUTPUT_ERROR"
	ErrorTypeCanceled            ErrorType = "CANCELED"
	ErrorTypeInternal            ErrorType = "INTERNAL_ERROR"
)

// Process exit codes. Analysis errors get distinct codes so scripts can
// tell an unusable capture from a broken installation.
const (
	ExitOK                  = 0
	ExitInternal            = 1
	ExitConfig              = 2
	ExitCapture             = 3
	ExitInsufficientData    = 4
	ExitGeometryUnavailable = 5
	ExitEmptyInput          = 6
	ExitOutput              = 7
	ExitCanceled            = 130
)

// AppError represents an application error with additional context.
type AppError struct {
	Type     ErrorType              `json:"type"`
	Message  string                 `json:"message"`
	Code     string                 `json:"code,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`
	ExitCode int                    `json:"-"`
	Err      error                  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError of the same type, so callers can test against
// the Err* sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

// WithDetails adds details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCode adds an error code.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// New creates a new AppError.
func New(errType ErrorType, message string, exitCode int) *AppError {
	return &AppError{
		Type:     errType,
		Message:  message,
		ExitCode: exitCode,
	}
}

// Wrap wraps an existing error.
func Wrap(err error, errType ErrorType, message string, exitCode int) *AppError {
	return &AppError{
		Type:     errType,
		Message:  message,
		ExitCode: exitCode,
		Err:      err,
	}
}

// Sentinels for errors.Is.
var (
	ErrInsufficientData    = New(ErrorTypeInsufficientData, "insufficient data", ExitInsufficientData)
	ErrGeometryUnavailable = New(ErrorTypeGeometryUnavailable, "geometry unavailable", ExitGeometryUnavailable)
	ErrEmptyInput          = New(ErrorTypeEmptyInput, "empty input", ExitEmptyInput)
	ErrCanceled            = New(ErrorTypeCanceled, "canceled", ExitCanceled)
)

// NewInsufficientDataError reports a capture with too few marker packets
// to estimate frame geometry.
func NewInsufficientDataError(message string) *AppError {
	return New(ErrorTypeInsufficientData, message, ExitInsufficientData)
}

// NewGeometryUnavailableError reports a simulation started without a
// usable packets-per-frame or frame period.
func NewGeometryUnavailableError(message string) *AppError {
	return New(ErrorTypeGeometryUnavailable, message, ExitGeometryUnavailable)
}

// NewEmptyInputError reports a simulation with no records.
func NewEmptyInputError(message string) *AppError {
	return New(ErrorTypeEmptyInput, message, ExitEmptyInput)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *AppError {
	return New(ErrorTypeConfig, message, ExitConfig)
}

// WrapConfigError wraps an error as a configuration error.
func WrapConfigError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeConfig, message, ExitConfig)
}

// WrapCaptureError wraps a capture read or decode failure.
func WrapCaptureError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeCapture, message, ExitCapture)
}

// WrapOutputError wraps a failure to write results.
func WrapOutputError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeOutput, message, ExitOutput)
}

// WrapCanceledError wraps a context cancellation.
func WrapCanceledError(err error) *AppError {
	return Wrap(err, ErrorTypeCanceled, "analysis interrupted", ExitCanceled)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *AppError {
	return New(ErrorTypeInternal, message, ExitInternal)
}

// WrapInternalError wraps an error as internal error.
func WrapInternalError(err error, message string) *AppError {
	return Wrap(err, ErrorTypeInternal, message, ExitInternal)
}

// IsAppError checks if an error is, or wraps, an AppError.
func IsAppError(err error) bool {
	_, ok := GetAppError(err)
	return ok
}

// GetAppError extracts the outermost AppError from an error chain.
func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
