package storage

import (
	"context"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

// Store is the uniform CRUD surface shared by the primary store and the
// in-memory mirror. Callers see the same shape regardless of which side
// currently serves them.
type Store interface {
	// Get retrieves one record by entity type and id.
	// Returns ErrNotFound if the record doesn't exist.
	Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error)

	// List returns all records of the given entity type.
	List(ctx context.Context, t models.EntityType) ([]models.Entity, error)

	// Create inserts a new record.
	// Returns ErrAlreadyExists on a duplicate id.
	Create(ctx context.Context, e models.Entity) error

	// Update replaces an existing record by id.
	// Returns ErrNotFound if the record doesn't exist.
	Update(ctx context.Context, e models.Entity) error

	// Delete removes a record by id. Deleting a missing record is not
	// an error.
	Delete(ctx context.Context, t models.EntityType, id string) error
}

// Primary is the authoritative relational store.
type Primary interface {
	Store

	// Ping is a minimal liveness check against the store.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
