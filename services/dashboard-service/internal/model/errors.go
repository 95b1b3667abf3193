package model

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced to the presentation layer.
type Kind string

const (
	KindNotAuthenticated  Kind = "not_authenticated"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation"
	KindTransport         Kind = "transport"
)

// Error is the typed failure returned by every dashboard operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

var (
	ErrNotAuthenticated  = &Error{Kind: KindNotAuthenticated}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrTransport         = &Error{Kind: KindTransport}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches bare kind sentinels such as ErrValidation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf classifies err. Untyped errors are treated as transport failures.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

func Unauthenticated(op string) error {
	return &Error{Kind: KindNotAuthenticated, Op: op, Message: "not authenticated"}
}

func Invalid(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func IllegalTransition(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Op: op, Message: fmt.Sprintf(format, args...)}
}

// TransportFailure wraps err unless it already carries a kind.
func TransportFailure(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: KindTransport, Op: op, Message: "backend request failed", Err: err}
}
