package storage

import "errors"

// Common storage errors
var (
	// ErrNotFound indicates that the requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists indicates a unique-constraint violation on insert
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStorageClosed indicates an operation against a closed store
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnknownEntityType indicates an entity type outside the mirrored set
	ErrUnknownEntityType = errors.New("unknown entity type")
)
