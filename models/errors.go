package models

import "errors"

// validationError communicates rule violations back to HTTP handlers.
type validationError struct {
	message string
}

func (e validationError) Error() string { return e.message }

// NewValidationError wraps a user-facing rule violation.
func NewValidationError(msg string) error {
	return validationError{message: msg}
}

// IsValidation helps callers distinguish between business and infrastructure failures.
func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}
