// Package errors provides structured error types for the provtrace engine.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the capture API
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes mirror the engine's failure taxonomy:
//   - CONFIG_*: option validation failures, rejected before any execution
//   - ENV_*: environment problems (output directory, source encoding)
//   - GRAPH_*: internal graph consistency violations (defensive)
//   - CAPTURE_*: non-fatal capture failures (logged, item skipped)
//   - SCRIPT_ERROR: the observed script's own failure, re-raised after cleanup
//
// # Usage
//
//	err := errors.New(errors.ErrCodeConfigInvalid, "snapshot size %d out of range", n)
//	if errors.Is(err, errors.ErrCodeConfigInvalid) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeEnvOutputDir, origErr, "create %s", dir)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for the engine's failure taxonomy.
const (
	// Configuration errors: rejected before any execution begins.
	ErrCodeConfigInvalid  Code = "CONFIG_INVALID"
	ErrCodeConfigConflict Code = "CONFIG_CONFLICT"

	// Environment errors: surfaced immediately, execution does not start.
	ErrCodeEnvOutputDir Code = "ENV_OUTPUT_DIR"
	ErrCodeEnvEncoding  Code = "ENV_ENCODING"

	// Graph consistency errors: defensive, should never occur when the
	// guaranteed-cleanup path is followed correctly.
	ErrCodeGraphUnbalanced Code = "GRAPH_UNBALANCED"
	ErrCodeGraphDangling   Code = "GRAPH_DANGLING_EDGE"

	// Capture errors: non-fatal, the item is skipped and shutdown continues.
	ErrCodeCaptureHash    Code = "CAPTURE_HASH"
	ErrCodeCaptureDisplay Code = "CAPTURE_DISPLAY"

	// Script errors: raised by the observed script itself.
	ErrCodeScript Code = "SCRIPT_ERROR"

	// Session lifecycle errors.
	ErrCodeSessionInactive Code = "SESSION_INACTIVE"
	ErrCodeSessionActive   Code = "SESSION_ACTIVE"

	// Internal errors.
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
// For *Error types, returns the message and cause without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether the error must abort the surrounding operation.
// Capture errors are non-fatal: the affected item is skipped and shutdown
// continues. Everything else is fatal.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeCaptureHash, ErrCodeCaptureDisplay:
		return false
	}
	return true
}
