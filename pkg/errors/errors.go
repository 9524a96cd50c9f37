// Package errors provides structured error types for the depforge engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across CLI and API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// The engine's failure taxonomy maps onto codes:
//   - INVALID_SPEC: a package spec string could not be parsed
//   - UNSATISFIABLE_CONSTRAINT / VERSION_CONFLICT / CIRCULAR_DEPENDENCY:
//     resolution failures, collected as conflicts rather than aborting
//   - FETCH_FAILED / CHECKSUM_MISMATCH: artifact retrieval failures
//   - DEPENDENTS_EXIST / STUCK_UPDATE: lifecycle failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidSpec, "invalid package spec: %s", raw)
//	if errors.Is(err, errors.ErrCodeInvalidSpec) {
//	    // Handle parse error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeFetchFailed, origErr, "failed to fetch %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Spec parsing and input validation
	ErrCodeInvalidSpec    Code = "INVALID_SPEC"
	ErrCodeInvalidPackage Code = "INVALID_PACKAGE"
	ErrCodeInvalidConfig  Code = "INVALID_CONFIG"

	// Resolution failures
	ErrCodeUnsatisfiable      Code = "UNSATISFIABLE_CONSTRAINT"
	ErrCodeCircularDependency Code = "CIRCULAR_DEPENDENCY"
	ErrCodeVersionConflict    Code = "VERSION_CONFLICT"

	// Fetch and integrity failures
	ErrCodeFetchFailed      Code = "FETCH_FAILED"
	ErrCodeChecksumMismatch Code = "CHECKSUM_MISMATCH"
	ErrCodeSignatureInvalid Code = "SIGNATURE_INVALID"

	// Lifecycle failures
	ErrCodeDependentsExist Code = "DEPENDENTS_EXIST"
	ErrCodeStuckUpdate     Code = "STUCK_UPDATE"

	// Resource not found
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeSourceNotFound  Code = "SOURCE_NOT_FOUND"

	// Network errors
	ErrCodeNetwork Code = "NETWORK_ERROR"
	ErrCodeTimeout Code = "TIMEOUT"

	// Ledger write failures are fatal to the current operation
	ErrCodeLedger Code = "LEDGER_ERROR"

	// Internal errors
	ErrCodeInternal Code = "INTERNAL_ERROR"
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
