// Package corekind defines the flat error-kind taxonomy shared by every
// component in the runtime, so callers can branch on a typed Kind instead
// of string-matching error messages.
package corekind

import (
	"errors"
	"fmt"
)

// Kind classifies the outcome of an operation.
type Kind int

const (
	Ok Kind = iota
	InvalidInput
	NotFound
	AlreadyExists
	Full
	QueueFull
	ArenaFull
	Timeout
	Eof
	Io
	Config
	GrammarReject
	PermissionDenied
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case InvalidInput:
		return "invalid_input"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Full:
		return "full"
	case QueueFull:
		return "queue_full"
	case ArenaFull:
		return "arena_full"
	case Timeout:
		return "timeout"
	case Eof:
		return "eof"
	case Io:
		return "io"
	case Config:
		return "config"
	case GrammarReject:
		return "grammar_reject"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error wraps a Kind and an optional underlying error, composing with
// errors.Is/errors.As via Unwrap.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Op != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with the given kind and op, no wrapped error.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an error that wraps err with the given kind and op.
// Returns a true nil error if err is nil — callers may return its
// result directly without a separate nil check.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or Ok if err is nil, or InvalidInput
// if err is a plain (non-corekind) error.
func KindOf(err error) Kind {
	if err == nil {
		return Ok
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return InvalidInput
}
