// Package fault defines the error taxonomy shared by the verification
// pipeline. Three kinds exist: configuration errors (malformed manifest,
// unresolved root, bad plan), I/O errors (a file unreadable mid-digest), and
// input errors (invalid series, out-of-range wavevector). All are fatal and
// never retried: every operation here is a deterministic function of its
// inputs, so retrying cannot change the outcome.
//
// Integrity mismatches are NOT errors. A file that fails validation is an
// expected first-class result, reported through manifest.ValidationReport.
package fault

import (
	"errors"
	"fmt"
)

var (
	ErrConfig = errors.New("config error")
	ErrIO     = errors.New("io error")
	ErrInput  = errors.New("input error")
)

// Error wraps a taxonomy kind with a specific diagnostic.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// Configf constructs a configuration error.
func Configf(format string, args ...any) error {
	return &Error{Kind: ErrConfig, Msg: fmt.Sprintf(format, args...)}
}

// IOf constructs an I/O error.
func IOf(format string, args ...any) error {
	return &Error{Kind: ErrIO, Msg: fmt.Sprintf(format, args...)}
}

// Inputf constructs an input error.
func Inputf(format string, args ...any) error {
	return &Error{Kind: ErrInput, Msg: fmt.Sprintf(format, args...)}
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return errors.Is(err, ErrConfig) }

// IsIO reports whether err is an I/O error.
func IsIO(err error) bool { return errors.Is(err, ErrIO) }

// IsInput reports whether err is an input error.
func IsInput(err error) bool { return errors.Is(err, ErrInput) }
