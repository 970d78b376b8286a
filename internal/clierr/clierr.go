// Package clierr defines structured error types for CLI commands.
// Errors carry a machine-readable code, a human-readable message,
// and optional details for scripted consumers.
package clierr

import (
	"fmt"
	"strconv"
)

// Error code constants. Uppercase, underscore-separated, stable across minor versions.
const (
	InvalidInput     = "INVALID_INPUT"
	ConfigNotFound   = "CONFIG_NOT_FOUND"
	ConfigExists     = "CONFIG_ALREADY_EXISTS"
	ConfigInvalid    = "CONFIG_INVALID"
	StoreUnavailable = "STORE_UNAVAILABLE"
	PathNotFound     = "PATH_NOT_FOUND"
	NotHandled       = "NOT_HANDLED"
	WritebackFailed  = "WRITEBACK_FAILED"
	ServiceFailed    = "SERVICE_FAILED"
	ConfirmationReq  = "CONFIRMATION_REQUIRED"
	InternalError    = "INTERNAL_ERROR"
)

// Error represents a structured CLI error with a machine-readable code.
type Error struct {
	Code    string
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string { return e.Message }

// Unwrap returns the error passed to Wrap, if any.
func (e *Error) Unwrap() error { return e.cause }

// New creates an Error with the given code and message.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error whose message is prefixed onto err's text. err
// stays reachable through errors.Is and errors.As.
func Wrap(code string, err error, message string) *Error {
	return &Error{Code: code, Message: message + ": " + err.Error(), cause: err}
}

// WithDetails returns the error with the given details map attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// ExitCode returns 2 for InternalError, 1 for all others.
func (e *Error) ExitCode() int {
	if e.Code == InternalError {
		return 2 //nolint:mnd // exit code 2 for internal errors
	}
	return 1
}

// SilentError signals an exit code without additional output.
// Used when results were already written to stdout.
type SilentError struct {
	Code int
}

// Error implements the error interface.
func (e *SilentError) Error() string { return "exit " + strconv.Itoa(e.Code) }
