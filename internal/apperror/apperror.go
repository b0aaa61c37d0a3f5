// Package apperror defines the domain errors shared by the stores and the
// HTTP layer.
//
// Every error carries one of the sentinel values below. Callers branch with
// errors.Is (for the category) and errors.As (for the message and field):
//
//	if errors.Is(err, apperror.ErrNotFound) { ... }
//
// The stores never mention HTTP; handler.writeError does the status mapping.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// AppError pairs a sentinel category with a message that is safe to show
// to the user.
type AppError struct {
	Err     error  // sentinel category
	Message string // human-readable message
	Field   string // optional: input field at fault
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing entity, e.g. NotFound("task", id).
func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// ValidationFailed reports bad input on a specific field.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports that the entity already exists, e.g. a registered email.
func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, id),
	}
}

// Unauthorized reports failed authentication. The message must not reveal
// which part of the credentials was wrong.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
