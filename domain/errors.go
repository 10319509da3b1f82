package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the booking core. Callers match with errors.Is.
var (
	// ErrIllegalTransition is returned when the booking's current status has
	// no edge for the requested event, including duplicate delivery of an
	// event that already applied.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrUnauthorized is returned when the acting role cannot trigger the
	// requested event, or the actor fails the event's guard.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a referenced booking, mechanic or service
	// does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrAuthorizationFailed is returned when the payment gateway declines.
	// The booking is left in its prior state and the caller may retry.
	ErrAuthorizationFailed = errors.New("payment authorization failed")

	// ErrUnknownCategory is returned for a vehicle category outside the
	// catalog.
	ErrUnknownCategory = errors.New("unknown vehicle category")
)

// FieldError is a user-correctable input defect, surfaced inline next to the
// offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError collects the field errors of one validation pass.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a field error and returns the receiver for chaining.
func (e *ValidationError) Add(field, message string) *ValidationError {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
	return e
}

// Err returns nil when no field errors were collected.
func (e *ValidationError) Err() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IllegalTransitionError reports the offending (status, event) pair.
func IllegalTransitionError(status BookingStatus, event Event) error {
	return fmt.Errorf("%w: no edge for event %q from status %q", ErrIllegalTransition, event, status)
}

// UnauthorizedError reports the role/event mismatch.
func UnauthorizedError(role Role, event Event) error {
	return fmt.Errorf("%w: role %q cannot trigger event %q", ErrUnauthorized, role, event)
}
