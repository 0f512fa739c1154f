package auth

import (
	"errors"
	"fmt"
)

// Stable machine-readable error codes.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeUserInactive       = "USER_INACTIVE"
	CodeTokenError         = "TOKEN_ERROR"
	CodePermissionDenied   = "PERMISSION_DENIED"
	CodeRateLimited        = "RATE_LIMITED"
	CodeValidation         = "VALIDATION_ERROR"
	CodeConflict           = "CONFLICT"
	CodeNotFound           = "NOT_FOUND"
)

// Error is an auth failure with a stable code and a human message.
// Two errors are equal under errors.Is when their codes match.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s (%v)", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "Invalid email or password"}
	ErrUserNotFound       = &Error{Code: CodeUserNotFound, Message: "User not found"}
	ErrUserInactive       = &Error{Code: CodeUserInactive, Message: "User account is not active"}
	ErrTokenInvalid       = &Error{Code: CodeTokenError, Message: "Token operation failed"}
	ErrPermissionDenied   = &Error{Code: CodePermissionDenied, Message: "Permission denied"}
	ErrTooManyAttempts    = &Error{Code: CodeRateLimited, Message: "Too many login attempts"}

	ErrInvalidInput = &Error{Code: CodeValidation, Message: "invalid input"}
	ErrConflict     = &Error{Code: CodeConflict, Message: "resource conflict"}
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
)

// CodeOf returns the machine-readable code carried by err, or "" for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsValidation reports whether err belongs to the validation class:
// malformed input, duplicates and missing references.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case CodeValidation, CodeConflict, CodeNotFound:
		return true
	}
	return false
}
