package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a request failure coarsely enough for callers to
// decide between retrying, re-authenticating, and giving up.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindValidation   ErrorKind = "validation"
	KindUnreachable  ErrorKind = "unreachable"
	KindInternal     ErrorKind = "internal"
)

// Error is the typed failure returned by every request-client call.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a typed error with an optional underlying cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf extracts the kind from any error chain; errors that did not
// originate in a request client report KindInternal.
func KindOf(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// IsUnauthorized reports whether err is a credential failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}
