package shared

import (
	"errors"
	"fmt"
)

// Code classifies failures for the HTTP layer and for callers that need to
// branch on outcome without string matching.
type Code string

const (
	// CodeInvalidArgument marks malformed or out-of-range input.
	CodeInvalidArgument Code = "invalid_argument"
	// CodeNotFound marks a missing entity or reference.
	CodeNotFound Code = "not_found"
	// CodeConflict marks uniqueness violations and concurrency re-validation
	// failures after retries are exhausted.
	CodeConflict Code = "conflict"
	// CodeInternal marks storage failures and everything unexpected.
	CodeInternal Code = "internal"
)

// Error carries a stable code alongside the message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a coded error wrapping cause (cause may be nil).
func NewError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// InvalidArgumentf builds an invalid-argument error.
func InvalidArgumentf(format string, args ...any) *Error {
	return NewError(CodeInvalidArgument, nil, format, args...)
}

// NotFoundf builds a not-found error.
func NotFoundf(format string, args ...any) *Error {
	return NewError(CodeNotFound, nil, format, args...)
}

// Conflictf builds a conflict error.
func Conflictf(format string, args ...any) *Error {
	return NewError(CodeConflict, nil, format, args...)
}

// Internal wraps a cause as an internal error.
func Internal(cause error, format string, args ...any) *Error {
	return NewError(CodeInternal, cause, format, args...)
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// UserSafeMessage returns a message suitable for API responses. Internal
// errors are flattened so storage details never leak to clients.
func UserSafeMessage(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == CodeInternal {
			return "internal error"
		}
		return coded.Message
	}
	return "internal error"
}
