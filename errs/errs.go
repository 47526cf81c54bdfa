// Package errs defines the error kinds shared across the polling engine.
package errs

import "fmt"

// Kind classifies an error so callers can decide how to react without
// string-matching messages.
type Kind string

const (
	Config             Kind = "config"
	Crypto             Kind = "crypto"
	Auth               Kind = "auth"
	Transport          Kind = "transport"
	RateLimited        Kind = "rate_limited"
	PermanentWebhook   Kind = "permanent_webhook_failure"
	TransientWebhook   Kind = "transient_webhook_failure"
	Persistence        Kind = "persistence"
	Mapping            Kind = "mapping"
)

// Error is a typed error carrying a Kind alongside the wrapped cause, in
// the same shape as an API error: a stable classification plus a
// human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind == kind
}
