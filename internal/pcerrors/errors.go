// Package pcerrors provides error handling for the persistedcache package.
package pcerrors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Error is an error that contains a scheme, a kind and an error.
type Error struct {
	scheme string
	kind   error
	err    error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.scheme == "" {
		return fmt.Sprintf("persistedcache: %s", e.err.Error())
	}
	return fmt.Sprintf("persistedcache/%s: %s", e.scheme, e.err.Error())
}

// Unwrap returns the original error.
func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target is the kind the error was marked with.
func (e *Error) Is(target error) bool {
	return e.kind != nil && target == e.kind
}

// Scheme returns the scheme of the driver that produced the error, if any.
func (e *Error) Scheme() string {
	return e.scheme
}

// NewWithScheme returns a new error with the given scheme and error.
func NewWithScheme(scheme string, err error) *Error {
	return &Error{scheme: scheme, err: err}
}

// New returns a new error with the given error.
func New(err error) *Error {
	return &Error{err: err}
}

// Mark wraps err so that it matches kind under errors.Is, while the original
// cause stays reachable through Unwrap. A stack trace is attached when err has
// none. A nil err yields nil; an err that already matches kind is returned as is.
func Mark(scheme string, err, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &Error{scheme: scheme, kind: kind, err: errors.WithStackDepth(err, 1)}
}
