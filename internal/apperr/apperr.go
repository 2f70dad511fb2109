// Package apperr defines the closed taxonomy of error kinds shared by the
// browser pool, stream engine, and socket router, plus helpers for wrapping
// and classifying errors without building a class hierarchy.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories the core recognizes at its boundaries.
type Kind string

const (
	NotFound   Kind = "not_found"
	Validation Kind = "validation"
	Capture    Kind = "capture"
	Navigation Kind = "navigation"
	Codec      Kind = "codec"
	Capacity   Kind = "capacity"
	Transport  Kind = "transport"
	Unknown    Kind = "unknown"
)

// Error pairs a Kind with an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap annotates err with a Kind and the operation that produced it.
// Wrapping nil returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New builds a bare Kind error from a message, with no wrapped cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to Unknown if err was never
// wrapped through this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return ""
	}
	return Unknown
}
