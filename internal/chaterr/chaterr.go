// Package chaterr is the error taxonomy surfaced to the host. Every value carries a
// localized, user-facing Message; none of them are terminal.
package chaterr

import (
	"github.com/pkg/errors"
)

// Kind classifies an error for the host.
type Kind int

const (
	Validation Kind = iota + 1
	Connectivity
	Auth
	DeliveryTimeout
	Storage
	Server
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Connectivity:
		return "connectivity"
	case Auth:
		return "auth"
	case DeliveryTimeout:
		return "delivery_timeout"
	case Storage:
		return "storage"
	case Server:
		return "server"
	}
	return "unknown"
}

// Error is what the single upward error callback receives.
type Error struct {
	Kind    Kind
	Code    string // stable identifier, usually an l10n key
	Message string // localized text for the user
	cause   error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches cause, annotated with code, to a new Error.
func Wrap(cause error, kind Kind, code, message string) *Error {
	e := New(kind, code, message)
	if cause != nil {
		e.cause = errors.Wrap(cause, code)
	}
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches another *Error by Kind and Code so callers can use errors.Is with a
// template value.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Reporter receives every user-facing error.
type Reporter interface {
	Report(err *Error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err *Error)

func (f ReporterFunc) Report(err *Error) { f(err) }
