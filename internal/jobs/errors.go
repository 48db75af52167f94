package jobs

import "errors"

var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidState = errors.New("job is not cancellable in its current state")
	ErrInvalidInput = errors.New("invalid input")

	// ErrStaleState means a conditional write lost against a concurrent transition.
	ErrStaleState = errors.New("job state changed concurrently")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }
