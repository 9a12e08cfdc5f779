// Package errs holds the error taxonomy shared by the services and the client:
// authentication failures, validation failures and account store failures.
package errs

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailTaken         = errors.New("email already registered")

	ErrStoreUnavailable = errors.New("store unavailable")

	ErrNoDepositor      = errors.New("no depositor selected")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrNotAssigned      = errors.New("account is not assigned to this depositor")
	ErrCancelled        = errors.New("cancelled")
)

// AuthError is returned when sign-in, sign-up or session lookup fails.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Op == "" {
		return "auth: " + e.Err.Error()
	}
	return "auth: " + e.Op + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// StoreError is returned when the account store rejects or cannot serve a call.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Op == "" {
		return "store: " + e.Err.Error()
	}
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// ValidationError blocks a submission before it reaches a backend.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields)+1)
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	if len(parts) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HasField reports whether the named field failed validation.
func (e *ValidationError) HasField(name string) bool {
	for _, f := range e.Fields {
		if f.Field == name {
			return true
		}
	}
	return false
}

// Invalid builds a ValidationError for a single field.
func Invalid(field, message string, cause error) *ValidationError {
	return &ValidationError{
		Fields: []FieldError{{Field: field, Message: message, Type: "invalid"}},
		Err:    cause,
	}
}

// Auth wraps err as an AuthError unless it already is one.
func Auth(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return &AuthError{Op: op, Err: err}
}

// Store wraps err as a StoreError unless it already is one.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
