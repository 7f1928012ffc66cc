package domain

import "errors"

// ErrNotFound is returned when a configuration or queue item does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidTransition is returned when a queue item is not in a state that
// allows the requested review step.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
