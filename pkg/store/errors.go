package store

import (
	"fmt"

	"github.com/aleksaelezovic/quadkv/internal/encoding"
)

// ArgumentError reports a malformed pattern, stage list or option. It is
// returned before the backend is touched.
type ArgumentError struct {
	Argument string
	Reason   string
	cause    error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Argument, e.Reason)
}

func (e *ArgumentError) Unwrap() error { return e.cause }

func argumentErrorf(argument, format string, args ...any) *ArgumentError {
	return &ArgumentError{Argument: argument, Reason: fmt.Sprintf(format, args...)}
}

// BackendError wraps a failure of the underlying key-value store.
//
// The original error can be accessed via errors.Unwrap.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// EncodingError is returned when a term cannot be represented in a key
type EncodingError = encoding.EncodingError

// DecodingError is returned when a stored key cannot be parsed
type DecodingError = encoding.DecodingError
