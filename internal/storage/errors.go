package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInconsistentState is returned when stored rows violate a structural invariant,
	// e.g. an aggregate whose current version cannot be loaded.
	ErrInconsistentState = errors.New("inconsistent state")

	// ErrTransient marks failures of the underlying store that are worth retrying
	// (lost connection, serialization failure, deadlock).
	ErrTransient = errors.New("transient store error")
)

// IsFatal reports whether err signals a broken invariant that retrying cannot fix.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInconsistentState)
}
