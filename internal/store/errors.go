package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// This is a generic version of the entity-specific not found errors
	// (e.g., ErrTaskNotFound, ErrResultNotFound).
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second result for the same task).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// Entity-specific "not found" errors

	// ErrTaskNotFound indicates that the requested processing task does not
	// exist in the store. This is a caller error, not a task state.
	ErrTaskNotFound = fmt.Errorf("%w: processing task", ErrNotFound)

	// ErrResultNotFound indicates that the requested processing result does
	// not exist in the store.
	ErrResultNotFound = fmt.Errorf("%w: processing result", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrResultExists indicates that the owning task already has a result.
	// Results are 1:1 with completed tasks and never rewritten.
	ErrResultExists = fmt.Errorf("%w: processing result", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
// This includes the generic ErrNotFound and all entity-specific not found errors.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
// This includes the generic ErrDuplicate and all entity-specific duplicate errors.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
