package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	ErrInvalidID = errors.New("invalid booking ID format")

	// ErrStaleWrite means a conditional update matched no document because
	// the booking's status changed underneath the caller.
	ErrStaleWrite = errors.New("booking was modified concurrently")
)
