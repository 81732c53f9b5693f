// Package derrors defines the tagged error vocabulary shared across the
// derivation pipeline: a small Kind enum plus an Error that carries the
// failing operation and the underlying cause, in the style of
// compliance.Violation's Code/Description/Location tagging.
package derrors

import (
	"errors"
	"fmt"
)

// Kind tags the category of failure. Kinds are compared with Is, not type
// assertions, the same "tag, not type" vocabulary compliance.Violation.Code
// uses.
type Kind int

const (
	Unknown Kind = iota
	ConfigError
	InputMissingError
	ParseError
	StructureError
	ImageError
	PdfError
	MetsWriteError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case InputMissingError:
		return "InputMissingError"
	case ParseError:
		return "ParseError"
	case StructureError:
		return "StructureError"
	case ImageError:
		return "ImageError"
	case PdfError:
		return "PdfError"
	case MetsWriteError:
		return "MetsWriteError"
	default:
		return "Unknown"
	}
}

// Error wraps an underlying cause with the operation that produced it and
// its Kind, so callers can both log a precise message and branch on Kind via
// errors.As.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs an *Error, wrapping err with the given Kind and operation
// name. A nil err yields a nil *Error's interface value stays non-nil, so
// callers should only call E when err != nil.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its wrap chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Kind == kind {
			return true
		}
		err = de.Err
	}
	return false
}

// KindOf returns the Kind of err, or Unknown if err is not (or does not
// wrap) a *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return Unknown
}
