// Package mirror implements the in-memory replica that serves reads and
// absorbs writes while the primary store is unreachable.
package mirror

import (
	"context"
	"sync"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// collection holds one entity type's records in insertion order.
type collection struct {
	records map[string][]byte
	order   []string
}

// Store is a goroutine-safe in-memory replica with the same CRUD surface
// as the primary. Records are kept JSON-encoded so that readers never
// share mutable state with writers.
type Store struct {
	mu          sync.RWMutex
	collections map[models.EntityType]*collection
}

// New creates an empty mirror store with one collection per mirrored
// entity type.
func New() *Store {
	s := &Store{
		collections: make(map[models.EntityType]*collection, len(models.MirroredEntityTypes)),
	}
	for _, t := range models.MirroredEntityTypes {
		s.collections[t] = &collection{records: make(map[string][]byte)}
	}
	return s
}

// Get retrieves one record by entity type and id.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return nil, storage.ErrUnknownEntityType
	}

	payload, ok := c.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return models.DecodeEntity(t, payload)
}

// List returns all records of the given entity type in insertion order.
func (s *Store) List(ctx context.Context, t models.EntityType) ([]models.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return nil, storage.ErrUnknownEntityType
	}

	entities := make([]models.Entity, 0, len(c.order))
	for _, id := range c.order {
		payload, ok := c.records[id]
		if !ok {
			continue
		}
		entity, err := models.DecodeEntity(t, payload)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// Create inserts a new record.
func (s *Store) Create(ctx context.Context, e models.Entity) error {
	payload, err := models.EncodeEntity(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[e.Type()]
	if !ok {
		return storage.ErrUnknownEntityType
	}

	if _, exists := c.records[e.EntityID()]; exists {
		return storage.ErrAlreadyExists
	}

	c.records[e.EntityID()] = payload
	c.order = append(c.order, e.EntityID())
	return nil
}

// Update replaces an existing record by id.
func (s *Store) Update(ctx context.Context, e models.Entity) error {
	payload, err := models.EncodeEntity(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[e.Type()]
	if !ok {
		return storage.ErrUnknownEntityType
	}

	if _, exists := c.records[e.EntityID()]; !exists {
		return storage.ErrNotFound
	}

	c.records[e.EntityID()] = payload
	return nil
}

// Delete removes a record by id. Deleting a missing record is a no-op.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[t]
	if !ok {
		return storage.ErrUnknownEntityType
	}

	if _, exists := c.records[id]; !exists {
		return nil
	}

	delete(c.records, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// ReplaceAll swaps in a fresh snapshot for one entity type. Used by the
// mirror primer after loading a collection from the primary.
func (s *Store) ReplaceAll(t models.EntityType, entities []models.Entity) error {
	c := &collection{records: make(map[string][]byte, len(entities))}
	for _, e := range entities {
		payload, err := models.EncodeEntity(e)
		if err != nil {
			return err
		}
		c.records[e.EntityID()] = payload
		c.order = append(c.order, e.EntityID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[t]; !ok {
		return storage.ErrUnknownEntityType
	}
	s.collections[t] = c
	return nil
}

// Len returns the number of records held for one entity type.
func (s *Store) Len(t models.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return 0
	}
	return len(c.records)
}
