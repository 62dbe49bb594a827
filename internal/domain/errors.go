package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an operation needs a session and
	// there is none, or the backend rejected the token.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrEmptyCart       = &ValidationError{Field: "cart", Reason: "cart is empty, nothing to checkout"}
)

// ValidationError is locally detectable bad input, raised before any
// network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransportError is a network failure or a non-2xx response without a
// usable message.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d, try again", e.Op, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v, try again", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed, try again", e.Op)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServerRejectedError carries a structured failure from the API. The message
// is passed through verbatim.
type ServerRejectedError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerRejectedError) Error() string {
	return e.Message
}

// StaleStateError means an optimistic local change was applied and then
// rolled back because the confirming server call failed.
type StaleStateError struct {
	Op  string
	Err error
}

func (e *StaleStateError) Error() string {
	return fmt.Sprintf("%s rolled back: %v", e.Op, e.Err)
}

func (e *StaleStateError) Unwrap() error {
	return e.Err
}

type AuthReason string

const (
	AuthInvalidCredentials AuthReason = "invalid_credentials"
	AuthAccountLocked      AuthReason = "account_locked"
	AuthEmailUnverified    AuthReason = "email_unverified"
	AuthRejected           AuthReason = "rejected"
)

// AuthError is a failed login or signup with a distinct reason.
type AuthError struct {
	Reason  AuthReason
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Reason {
	case AuthInvalidCredentials:
		return "invalid email or password"
	case AuthAccountLocked:
		return "account is locked"
	case AuthEmailUnverified:
		return "email address must be verified first"
	}
	return "authentication failed"
}

// UserMessage returns the text a UI should show for err.
func UserMessage(err error) string {
	var (
		rejected   *ServerRejectedError
		validation *ValidationError
		auth       *AuthError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return "please log in to continue"
	case errors.As(err, &auth):
		return auth.Error()
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &rejected):
		return rejected.Message
	}
	return "something went wrong, try again"
}
