// Package apierr defines the error taxonomy of the client: local validation
// failures, authentication rejections, transport failures, server-reported
// errors and busy-guard rejections. Callers classify with errors.As.
package apierr

import (
	"errors"
	"fmt"
)

// ValidationError reports a client-side validation failure. It never reaches
// the network and is meant to be shown inline at the form that produced it.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidation builds a ValidationError from a format string.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError reports an absent, rejected or expired credential. When raised by
// an authenticated call it forces the session back to the unauthenticated
// state.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return e.Msg }

// TransportError reports that no response was received at all.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("request failed: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError reports a non-2xx response carrying a server message, or a
// success response whose body violated the contract.
type ServerError struct {
	Status int
	Msg    string
}

func (e *ServerError) Error() string { return e.Msg }

// ConcurrencyError reports a busy-guard rejection: a second mutating
// operation was attempted on an entity that already has one in flight.
type ConcurrencyError struct {
	ID int
	Op string
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("operation already in progress (%s, id %d)", e.Op, e.ID)
}

// IsAuth reports whether err is an AuthError anywhere in its chain.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsValidation reports whether err is a ValidationError anywhere in its chain.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
