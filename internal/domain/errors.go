// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrTaskNotCancellable is returned when a cancel request targets a task
	// that is already processing or terminal.
	ErrTaskNotCancellable = errors.New("task cannot be cancelled in its current status")
)
