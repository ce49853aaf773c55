package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return GetCode(err) == code
}

// Predefined error codes
const (
	CodeInput          = "INPUT_ERROR"
	CodeSchemaConflict = "SCHEMA_CONFLICT"
	CodeValidator      = "VALIDATOR_ERROR"
	CodeLLM            = "LLM_ERROR"
	CodeLayerIntegrity = "LAYER_INTEGRITY_ERROR"
	CodeStaleSource    = "STALE_SOURCE_ERROR"
	CodeCancelled      = "CANCELLED"
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeNotFound       = "NOT_FOUND"
	CodePersistence    = "PERSISTENCE_ERROR"
	CodeInternal       = "INTERNAL_ERROR"
)

// Common error constructors

func InputError(message string) *AppError {
	return New(CodeInput, message)
}

func ValidatorError(message string) *AppError {
	return New(CodeValidator, message)
}

func LLMError(message string, cause error) *AppError {
	return &AppError{Code: CodeLLM, Message: message, Cause: cause}
}

func LayerIntegrity(message string) *AppError {
	return New(CodeLayerIntegrity, message)
}

func StaleSource(message string) *AppError {
	return New(CodeStaleSource, message)
}

func Cancelled(message string) *AppError {
	return New(CodeCancelled, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func Persistence(message string, cause error) *AppError {
	return &AppError{Code: CodePersistence, Message: message, Cause: cause}
}
