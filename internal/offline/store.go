package offline

import (
	"context"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

// Store is the offline-resilient CRUD surface the rest of the
// application consumes. Every call goes through the persistence gateway:
// primary first, mirror fallback with queue recording on connectivity
// failure. Callers are unaware of the online/offline state.
type Store struct {
	m *Manager
}

// Get retrieves one record, serving possibly-stale mirror data during an
// outage.
func (s *Store) Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	return Execute(ctx, s.m.gateway,
		func(ctx context.Context) (models.Entity, error) { return s.m.primary.Get(ctx, t, id) },
		func(ctx context.Context) (models.Entity, error) { return s.m.mirror.Get(ctx, t, id) },
		nil)
}

// List returns all records of one entity type.
func (s *Store) List(ctx context.Context, t models.EntityType) ([]models.Entity, error) {
	return Execute(ctx, s.m.gateway,
		func(ctx context.Context) ([]models.Entity, error) { return s.m.primary.List(ctx, t) },
		func(ctx context.Context) ([]models.Entity, error) { return s.m.mirror.List(ctx, t) },
		nil)
}

// Create inserts a record. During an outage the insert is acknowledged
// optimistically against the mirror and queued for replay.
func (s *Store) Create(ctx context.Context, e models.Entity) error {
	_, err := Execute(ctx, s.m.gateway,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.primary.Create(ctx, e) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.mirror.Create(ctx, e) },
		&QueueRecord{EntityType: e.Type(), Op: models.OpCreate, TargetID: e.EntityID(), Payload: e})
	return err
}

// Update replaces a record by id, with the same optimistic offline
// behavior as Create.
func (s *Store) Update(ctx context.Context, e models.Entity) error {
	_, err := Execute(ctx, s.m.gateway,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.primary.Update(ctx, e) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.mirror.Update(ctx, e) },
		&QueueRecord{EntityType: e.Type(), Op: models.OpUpdate, TargetID: e.EntityID(), Payload: e})
	return err
}

// Delete removes a record by id.
func (s *Store) Delete(ctx context.Context, t models.EntityType, id string) error {
	_, err := Execute(ctx, s.m.gateway,
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.primary.Delete(ctx, t, id) },
		func(ctx context.Context) (struct{}, error) { return struct{}{}, s.m.mirror.Delete(ctx, t, id) },
		&QueueRecord{EntityType: t, Op: models.OpDelete, TargetID: id})
	return err
}
