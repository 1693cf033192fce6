package chash

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Ring wraps exactly one of them, so
// callers can use errors.Is() to discriminate.
var (
	ErrInvalidParameter   = errors.New("invalid parameter")
	ErrOutOfMemory        = errors.New("out of memory")
	ErrIO                 = errors.New("i/o failure")
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotFound           = errors.New("not found")
)

var kindLabels = []struct {
	kind  error
	label string
}{
	{ErrInvalidParameter, "invalid_parameter"},
	{ErrOutOfMemory, "out_of_memory"},
	{ErrIO, "io"},
	{ErrNotInitialized, "not_initialized"},
	{ErrAlreadyInitialized, "already_initialized"},
	{ErrNotFound, "not_found"},
}

// Error describes failed ring operation.
type Error struct {
	// Op is a name of the operation, e.g. "lookup" or "unmarshal".
	Op string

	// Kind is one of the Err* kinds declared by this package.
	Kind error

	// Err is an optional underlying cause.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "chash: " + e.Op + ": " + e.Kind.Error()
	}
	return "chash: " + e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns short label of the err's kind suitable for metrics and log
// fields. It returns "none" for nil and "unknown" for foreign errors.
func KindOf(err error) string {
	if err == nil {
		return "none"
	}
	for _, k := range kindLabels {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return "unknown"
}

func opError(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

func opErrorf(op string, kind error, format string, args ...interface{}) error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

func opWrap(op string, kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}
