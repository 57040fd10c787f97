// Package apperr defines the error kinds surfaced by the lifeline store.
// Callers match them with errors.Is; lower layers wrap them with context.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrInvalidHierarchy = errors.New("invalid hierarchy")
	ErrConflict         = errors.New("conflict")
	ErrMigration        = errors.New("migration failed")
	ErrCycleDetected    = errors.New("cycle detected")
	ErrTimeout          = errors.New("timeout")
)

// Validation wraps err (typically an ozzo validation.Errors) as ErrValidation.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// MigrationError reports a schema step that could not be applied.
// Version is 0 when the failure is not tied to a single step.
type MigrationError struct {
	Version     int
	Description string
	Err         error
}

func (e *MigrationError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("migration: %v", e.Err)
	}
	return fmt.Sprintf("migration %d (%s): %v", e.Version, e.Description, e.Err)
}

// Unwrap exposes both the ErrMigration kind and the underlying cause.
func (e *MigrationError) Unwrap() []error {
	return []error{ErrMigration, e.Err}
}
