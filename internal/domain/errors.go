package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceNotFound is returned when the target resource does not exist
	ErrResourceNotFound = errors.New("resource not found")

	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidParameters is returned when task parameters are not valid JSON
	ErrInvalidParameters = errors.New("task parameters must be valid JSON")
)

// ConflictError is returned by job creation when the resource already has a
// job in a non-terminal status. It carries the in-flight job's id so callers
// can surface it.
type ConflictError struct {
	ActiveJobID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an active job already exists for this resource: %s", e.ActiveJobID)
}
