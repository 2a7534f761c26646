package helper

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to map it to a response.
type Kind int

const (
	// KindInternal is the default for unexpected failures (database, provider setup).
	KindInternal Kind = iota
	// KindNotFound marks lookups of missing datasets or documents.
	KindNotFound
	// KindBadRequest marks invalid configuration (unknown mode, invalid weight sum).
	KindBadRequest
	// KindUnavailable marks missing capabilities (inactive model, absent vector search).
	KindUnavailable
)

// Error wraps an underlying error with the operation that failed and a Kind.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("error in %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an internal error for the given operation.
func NewError(op string, err error) error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// NewNotFound creates a not-found error for the given operation.
func NewNotFound(op string, err error) error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewBadRequest creates a bad-request error for the given operation.
func NewBadRequest(op string, err error) error {
	return &Error{Op: op, Kind: KindBadRequest, Err: err}
}

// NewUnavailable creates an unavailable error for the given operation.
func NewUnavailable(op string, err error) error {
	return &Error{Op: op, Kind: KindUnavailable, Err: err}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err or any wrapped error is a not-found error.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsBadRequest reports whether err or any wrapped error is a bad-request error.
func IsBadRequest(err error) bool {
	return kindOf(err) == KindBadRequest
}

// IsUnavailable reports whether err or any wrapped error is an unavailable error.
func IsUnavailable(err error) bool {
	return kindOf(err) == KindUnavailable
}
