package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth matches every AuthError.
	ErrAuth = errors.New("authentication failed")
	// ErrConflict matches every ConflictError.
	ErrConflict = errors.New("conflict")
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = errors.New("not found")
)

// AuthReason tells why a credential was rejected.
type AuthReason string

const (
	NoCredential       AuthReason = "no credential"
	InvalidToken       AuthReason = "invalid token"
	UnknownUser        AuthReason = "unknown user"
	TokenMismatch      AuthReason = "token mismatch"
	InvalidCredentials AuthReason = "invalid credentials"
	NotAdmin           AuthReason = "admin required"
)

// AuthError is returned when a request cannot be tied to a user.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return "auth: " + string(e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrAuth }

// ConflictError is returned when a unique value is already in use.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already in use", e.Field, e.Value)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError is returned when an id does not resolve.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AuthReasonOf returns the reason of an AuthError in err's chain.
func AuthReasonOf(err error) (AuthReason, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason, true
	}
	return "", false
}
