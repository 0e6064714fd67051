// Package apperr defines the error taxonomy shared by the timeline store, the
// export ledger and the HTTP layer.
//
// Every failure a caller can act on carries a Kind. Storage failures are always
// reported after the enclosing transaction has been rolled back, so callers never
// observe partial state.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for status mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindPrecondition Kind = "precondition"
	KindStorage      Kind = "storage"
)

// Error is a classified error. Message is safe to show to API clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind returns the kind as a plain string so packages can classify errors
// through a small interface without importing this one.
func (e *Error) ErrorKind() string { return string(e.Kind) }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports a missing entity, e.g. NotFound("track", id).
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Precondition(format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a driver or transaction failure. A nil err yields nil.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of err, or "" when err is unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
