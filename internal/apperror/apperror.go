// Package apperror defines the domain errors shared by every layer.
//
// Repositories and services return these; only the HTTP layer knows how
// they translate into status codes (see handler/response.go).
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("unauthenticated")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a unique-constraint violation. field names the
// offending column in its JSON spelling ("email", "googleId"); an empty
// field means the storage engine did not say which constraint fired.
func Conflict(resource, field string) *AppError {
	msg := fmt.Sprintf("%s already exists", resource)
	if field != "" {
		msg = fmt.Sprintf("%s with this %s already exists", resource, field)
	}
	return &AppError{
		Err:     ErrConflict,
		Message: msg,
		Field:   field,
	}
}

// Unauthenticated means the caller has no valid identity: no session,
// or credentials that did not check out. Mapped to 401.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}
