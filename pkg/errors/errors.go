// Package errors provides structured error types for the piplock application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and library packages
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Each failure class of the tool has a distinct code. Translators and
// verifiers never swallow an error carrying one of these codes; errors
// propagate to the caller, which decides whether the failure is fatal. The
// one deliberate exception is ErrCodeNotLocked, which the install path
// downgrades to an unverified pip invocation with a warning.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeFileNotFound, "file %q not found", name)
//	if errors.Is(err, errors.ErrCodeFileNotFound) {
//	    // Handle missing file
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFileRead, parseErr, "failed to parse Pipfile")
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// File location and parsing errors
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeFileRead     Code = "FILE_READ"

	// Semantic integrity errors
	ErrCodeHashMismatch          Code = "HASH_MISMATCH"
	ErrCodePythonVersionMismatch Code = "PYTHON_VERSION_MISMATCH"

	// Manifest structural errors
	ErrCodeRequirements Code = "REQUIREMENTS"
	ErrCodeNotLocked    Code = "REQUIREMENTS_NOT_LOCKED"
	ErrCodePoetry       Code = "POETRY"
	ErrCodeArguments    Code = "ARGUMENTS"

	// Capability errors
	ErrCodeExtrasMissing Code = "EXTRAS_MISSING"
	ErrCodeNotSupported  Code = "NOT_SUPPORTED"

	// Installation errors
	ErrCodePipInstall Code = "PIP_INSTALL"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
