package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/orm/internal/orm/schema"
)

// Common repository error types
var (
	// ErrInvalidColumn is returned when a criteria or order key is not a
	// column of the entity. No SQL is issued.
	ErrInvalidColumn = errors.New("invalid column")

	// ErrEntityDeleted is returned when a deleted entity is saved or deleted again
	ErrEntityDeleted = errors.New("entity was deleted")

	// ErrEntityMismatch is returned when an entity of another type is passed
	ErrEntityMismatch = errors.New("entity type does not match repository")

	// ErrValidationFailed is returned when validate-on-save rejects an entity
	ErrValidationFailed = errors.New("validation failed")

	// ErrNoTransactions is returned by WithTransaction when the repository
	// runs on an executor that cannot begin transactions
	ErrNoTransactions = errors.New("executor does not support transactions")
)

// ValidationError contains the rejected fields of an entity
type ValidationError struct {
	Entity string
	Errors schema.FieldErrors
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	fields := ve.Errors.Fields()
	switch len(fields) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s.%s: %s", ve.Entity, fields[0], strings.Join(ve.Errors[fields[0]], ", "))
	default:
		return fmt.Sprintf("validation failed: %s: %d fields", ve.Entity, len(fields))
	}
}

// Unwrap lets errors.Is match ErrValidationFailed
func (ve *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// IsValidationFailed returns true if the error is a validation error
func IsValidationFailed(err error) bool {
	var valErr *ValidationError
	return errors.As(err, &valErr)
}
