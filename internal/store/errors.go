package store

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTooShort      = errors.New("too short")

	// ErrCorruptStore is returned by strict stores when a persisted document
	// cannot be decoded.
	ErrCorruptStore = errors.New("corrupt store document")

	// ErrStorage wraps backend write failures.
	ErrStorage = errors.New("storage error")
)

// ValidationError ties a validation failure to the input field that caused it.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message, Err: ErrInvalidInput}
}

func tooShort(field, message string) error {
	return &ValidationError{Field: field, Message: message, Err: ErrTooShort}
}

// NewValidationError reports invalid input for field.
func NewValidationError(field, message string) error {
	return invalid(field, message)
}
