package view

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so the transport layer can pick a status code.
type Kind int

const (
	// KindInternal covers connectivity faults, timeouts and anything unexpected.
	KindInternal Kind = iota
	// KindValidation is bad caller input, detected before any backend call.
	KindValidation
	// KindBackend is a statement the backend rejected.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBackend:
		return "backend"
	default:
		return "internal"
	}
}

// Error is the error type returned by every operation in this package.
type Error struct {
	Err     error
	Message string
	Kind    Kind
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidationError returns a KindValidation error with a formatted message.
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// BackendQueryError wraps an error reported by the backend for a compiled statement.
func BackendQueryError(err error, message string) *Error {
	return &Error{Kind: KindBackend, Message: message, Err: err}
}

// InternalError wraps any other failure.
func InternalError(err error) *Error {
	return &Error{Kind: KindInternal, Message: err.Error(), Err: err}
}

// KindOf reports the Kind of err. Errors that did not originate here are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
