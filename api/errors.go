// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error-code mapping for the perfnet native substrate.
// Every error that can cross the foreign-function boundary maps to a stable ErrorCode.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrInvalidArgument   = fmt.Errorf("invalid argument")
	ErrResourceExhausted = fmt.Errorf("resource exhausted")
	ErrInvalidHandle     = fmt.Errorf("invalid or stale handle")
	ErrClosed            = fmt.Errorf("component is closed")
	ErrNotSupported      = fmt.Errorf("operation not supported")
	ErrAlreadyExists     = fmt.Errorf("resource already exists")
	ErrNotFound          = fmt.Errorf("resource not found")
	ErrSecurity          = fmt.Errorf("security-critical component unavailable")
	ErrHostInterop       = fmt.Errorf("host runtime interop failure")
)

// ErrorCode is the integer form of an error as seen by the host runtime.
// Values are part of the versioned native interface and never renumbered.
type ErrorCode int32

const (
	CodeOK                ErrorCode = 0
	CodeInvalidArgument   ErrorCode = -1
	CodeResourceExhausted ErrorCode = -2
	CodeInvalidHandle     ErrorCode = -3
	CodeClosed            ErrorCode = -4
	CodeNotSupported      ErrorCode = -5
	CodeSecurity          ErrorCode = -6
	CodeInternal          ErrorCode = -7
)

func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeResourceExhausted:
		return "resource_exhausted"
	case CodeInvalidHandle:
		return "invalid_handle"
	case CodeClosed:
		return "closed"
	case CodeNotSupported:
		return "not_supported"
	case CodeSecurity:
		return "security"
	default:
		return "internal"
	}
}

// CodeOf maps err onto the ErrorCode taxonomy. Component packages wrap one of the
// sentinels above so errors.Is resolves the category.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotFound):
		return CodeInvalidArgument
	case errors.Is(err, ErrResourceExhausted):
		return CodeResourceExhausted
	case errors.Is(err, ErrInvalidHandle):
		return CodeInvalidHandle
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrNotSupported):
		return CodeNotSupported
	case errors.Is(err, ErrSecurity):
		return CodeSecurity
	default:
		return CodeInternal
	}
}

// Error carries a code and context for diagnostics.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap exposes the sentinel the error was built from.
func (e *Error) Unwrap() error { return e.cause }

// NewError creates a structured error rooted at sentinel.
func NewError(sentinel error, message string) *Error {
	return &Error{
		Code:    CodeOf(sentinel),
		Message: message,
		cause:   sentinel,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}
