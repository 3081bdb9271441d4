// Package apperrors defines the error taxonomy shared by services and
// handlers. Every error crossing a service boundary carries a Kind so the
// HTTP layer can pick a status and callers can decide whether to retry.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers missing or malformed request fields.
	KindValidation
	// KindAuthorization covers missing, invalid, or insufficient-role tokens.
	KindAuthorization
	// KindNotFound covers absent products, codes, or orders.
	KindNotFound
	// KindConflict covers insufficient stock and unusable discount codes.
	KindConflict
	// KindInfrastructure covers storage or transport unavailability;
	// callers may retry.
	KindInfrastructure
	// KindEmailSend covers delivery failures after the order is persisted.
	KindEmailSend
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInfrastructure:
		return "infrastructure"
	case KindEmailSend:
		return "email_send"
	}
	return "unknown"
}

// Error is a kind-tagged error with an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from err, or KindUnknown if err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
