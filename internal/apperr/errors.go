// Package apperr defines the error kinds surfaced by the booking core.
//
// Every error returned from a service operation either is, or wraps, one of the
// kind sentinels below, so transports can map it with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTransient         = errors.New("transient error")
)

// Error is a kinded error with a caller-facing reason.
type Error struct {
	kind   error
	reason string
	cause  error
}

func New(kind error, reason string) *Error {
	return &Error{kind: kind, reason: reason}
}

func Newf(kind error, format string, args ...any) *Error {
	return &Error{kind: kind, reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and reason to an underlying cause.
func Wrap(kind error, reason string, cause error) *Error {
	return &Error{kind: kind, reason: reason, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.reason + ": " + e.cause.Error()
	}
	return e.reason
}

// Reason is the message without the wrapped cause.
func (e *Error) Reason() string { return e.reason }

func (e *Error) Kind() error { return e.kind }

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.kind, e.cause}
	}
	return []error{e.kind}
}

func Validation(format string, args ...any) *Error {
	return Newf(ErrValidation, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return Newf(ErrNotFound, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return Newf(ErrForbidden, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return Newf(ErrConflict, format, args...)
}

// KindOf returns the kind sentinel err carries, or nil for unkinded errors.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrConflict, ErrInvalidTransition, ErrTransient} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ReasonOf returns the reason of the outermost *Error in the chain, falling back to err.Error().
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason()
	}
	return err.Error()
}
