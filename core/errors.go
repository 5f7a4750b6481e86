package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an operation failure. The set is fixed.
type Kind string

const (
	KindUnauthenticated    Kind = "UNAUTHENTICATED"
	KindPermissionDenied   Kind = "PERMISSION_DENIED"
	KindInvalidArgument    Kind = "INVALID_ARGUMENT"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindNotFound           Kind = "NOT_FOUND"
	KindFailedPrecondition Kind = "FAILED_PRECONDITION"
	KindInternal           Kind = "INTERNAL"
)

// Error is a classified error: a Kind, a human readable message and the optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func NewError(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under kind. The message of err is kept for diagnosis only.
func WrapError(err error, kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal wraps err as INTERNAL, embedding its message so operators can diagnose it.
func Internal(err error, msg string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}
	return &Error{Kind: KindInternal, Message: msg + ": " + err.Error(), Err: err}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// AsError returns the classified error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr, true
	}
	return nil, false
}

// KindOf classifies err; validation errors are INVALID_ARGUMENT, anything unclassified is INTERNAL.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if cerr, ok := AsError(err); ok {
		return cerr.Kind
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindInvalidArgument
	}
	return KindInternal
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "invalid argument"
	}
	return err.Err.Error()
}
