package state

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned when an operation targets a session id
// with no stored document.
var ErrSessionNotFound = errors.New("session not found")

// ErrPlayerNotFound is returned when an operation references a player id
// absent from the session.
var ErrPlayerNotFound = errors.New("player not found")

// ValidationError marks a malformed mutation that was rejected before any
// write reached the store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError with a formatted reason.
func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
