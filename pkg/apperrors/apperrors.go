// Package apperrors defines the error-kind taxonomy of spec.md §7: NotFound,
// Invalid, Denied, Transient and Conflict. The shape is adapted from
// lazydocker's pkg/commands/errors.go ComplexError, generalized from a
// single error code to a small enum so that pkg/busservice can translate
// kinds to transport errors without string matching.
package apperrors

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind enumerates the error categories of spec.md §7.
type Kind int

const (
	// KindNotFound means a manifest, permission or user lookup found
	// nothing.
	KindNotFound Kind = iota
	// KindInvalid means a manifest was missing its required triple or a
	// settings value could not be parsed.
	KindInvalid
	// KindDenied means a uid is out of range, an application is unknown,
	// or the license has not been agreed to.
	KindDenied
	// KindTransient means a filesystem or transport I/O operation failed
	// and may succeed on retry.
	KindTransient
	// KindConflict means a concurrent prompt was coalesced; callers
	// should not normally see this kind surfaced, per spec.md §7.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInvalid:
		return "Invalid"
	case KindDenied:
		return "Denied"
	case KindTransient:
		return "Transient"
	case KindConflict:
		return "Conflict"
	default:
		return "Unknown"
	}
}

// Error is a kind-tagged error carrying a stack frame, adapted from
// ComplexError in the teacher's pkg/commands/errors.go.
type Error struct {
	Kind    Kind
	Message string
	frame   xerrors.Frame
}

// New builds an Error of the given kind, capturing the caller's frame.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, frame: xerrors.Caller(1)}
}

// Newf builds an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), frame: xerrors.Caller(1)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FormatError implements xerrors.Formatter.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Printf("%s: %s", e.Kind, e.Message)
	e.frame.Format(p)
	return nil
}

// Format implements fmt.Formatter so %+v prints the stack frame.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns err's Kind and true if err (or something it wraps) is an
// *Error, so callers translating to a transport error can switch on it
// without an extra type assertion at every call site.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if xerrors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
