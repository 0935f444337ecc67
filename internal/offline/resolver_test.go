package offline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

func newTestResolver(t *testing.T, primary *fakePrimary) (*Resolver, *Queue, *DeadLetters) {
	t.Helper()

	queue := NewQueue()
	dead, err := OpenDeadLetters(filepath.Join(t.TempDir(), "dead.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, dead.Close())
	})

	return NewResolver(primary, queue, dead, testLogger()), queue, dead
}

func enqueue(t *testing.T, queue *Queue, op models.OpType, e models.Entity) {
	t.Helper()
	payload, err := models.EncodeEntity(e)
	require.NoError(t, err)
	require.NoError(t, queue.Append(models.OfflineOp{
		EntityType:    e.Type(),
		Op:            op,
		TargetID:      e.EntityID(),
		Payload:       payload,
		BaseTimestamp: e.VersionStamp(),
		EnqueuedAt:    time.Now(),
	}))
}

func TestResolver_ReplayCreate(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	r, queue, _ := newTestResolver(t, primary)

	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p1", Name: "edge"})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, queue.Len())

	got, err := primary.Get(ctx, models.EntityProfile, "p1")
	require.NoError(t, err)
	assert.Equal(t, "edge", got.(*models.Profile).Name)
}

func TestResolver_ReplayCreateAlreadyApplied(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	require.NoError(t, primary.Create(ctx, &models.Profile{ID: "p1", Name: "edge"}))

	r, queue, dead := newTestResolver(t, primary)
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p1", Name: "edge"})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 1, result.AlreadyThere)
	assert.Equal(t, 0, queue.Len())

	n, err := dead.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResolver_ReplayDelete(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	require.NoError(t, primary.Create(ctx, &models.Server{ID: "srv-1", Name: "fs", Endpoint: "stdio"}))

	r, queue, _ := newTestResolver(t, primary)
	require.NoError(t, queue.Append(models.OfflineOp{
		EntityType: models.EntityServer,
		Op:         models.OpDelete,
		TargetID:   "srv-1",
		EnqueuedAt: time.Now(),
	}))
	// Deleting an id that never existed replays as a no-op.
	require.NoError(t, queue.Append(models.OfflineOp{
		EntityType: models.EntityServer,
		Op:         models.OpDelete,
		TargetID:   "srv-gone",
		EnqueuedAt: time.Now(),
	}))

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 0, queue.Len())

	entities, err := primary.List(ctx, models.EntityServer)
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestResolver_ReplayUpdateNoDivergence(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	require.NoError(t, primary.Create(ctx, &models.Profile{
		ID: "p1", Name: "edge", UpdatedAt: "2026-08-20T10:00:00Z",
	}))

	r, queue, _ := newTestResolver(t, primary)
	frozen := time.Date(2026, 8, 20, 11, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return frozen }

	enqueue(t, queue, models.OpUpdate, &models.Profile{
		ID: "p1", Name: "edge-renamed", UpdatedAt: "2026-08-20T10:00:00Z",
	})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Conflicts)
	assert.Empty(t, queue.Conflicts())

	got, err := primary.Get(ctx, models.EntityProfile, "p1")
	require.NoError(t, err)
	profile := got.(*models.Profile)
	assert.Equal(t, "edge-renamed", profile.Name)
	assert.Equal(t, frozen.Format(time.RFC3339Nano), profile.UpdatedAt)
}

func TestResolver_ReplayUpdateMergesConflict(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()

	// The primary moved on while we were offline.
	require.NoError(t, primary.Create(ctx, &models.Profile{
		ID:        "p1",
		Name:      "remote-name",
		Settings:  map[string]any{"a": float64(1), "z": float64(9)},
		Checks:    []string{"cpu", "net"},
		UpdatedAt: "2026-08-20T10:30:00Z",
	}))

	r, queue, _ := newTestResolver(t, primary)

	enqueue(t, queue, models.OpUpdate, &models.Profile{
		ID:        "p1",
		Name:      "local-name",
		Settings:  map[string]any{"a": float64(1), "b": float64(3)},
		Checks:    []string{"cpu", "mem"},
		UpdatedAt: "2026-08-20T10:00:00Z",
	})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 1, result.Conflicts)

	got, err := primary.Get(ctx, models.EntityProfile, "p1")
	require.NoError(t, err)
	profile := got.(*models.Profile)

	// Scalar fields take the offline value.
	assert.Equal(t, "local-name", profile.Name)
	// Settings shallow-merge, offline wins per key.
	assert.Equal(t, float64(1), profile.Settings["a"])
	assert.Equal(t, float64(3), profile.Settings["b"])
	assert.Equal(t, float64(9), profile.Settings["z"])
	// Checks union, primary elements first.
	assert.Equal(t, []string{"cpu", "net", "mem"}, profile.Checks)
	// The merged write gets a fresh stamp.
	assert.NotEqual(t, "2026-08-20T10:00:00Z", profile.UpdatedAt)
	assert.NotEqual(t, "2026-08-20T10:30:00Z", profile.UpdatedAt)

	conflicts := queue.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.EntityProfile, conflicts[0].EntityType)
	assert.Equal(t, "p1", conflicts[0].TargetID)
	assert.Equal(t, models.ConflictVersionMismatch, conflicts[0].Kind)
	assert.Equal(t, "2026-08-20T10:00:00Z", conflicts[0].BaseTimestamp)
	assert.Equal(t, "2026-08-20T10:30:00Z", conflicts[0].RemoteTimestamp)
}

func TestResolver_ReplayUpdateVanishedRecord(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	r, queue, _ := newTestResolver(t, primary)

	enqueue(t, queue, models.OpUpdate, &models.Plugin{
		ID: "plug-1", Name: "cpu-detector", Enabled: true, UpdatedAt: "2026-08-20T10:00:00Z",
	})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 0, result.Conflicts)

	got, err := primary.Get(ctx, models.EntityPlugin, "plug-1")
	require.NoError(t, err)
	assert.Equal(t, "cpu-detector", got.(*models.Plugin).Name)
}

func TestResolver_ConnectivityFailureAbortsPass(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	primary.setHook(func(op string, et models.EntityType, id string) error {
		if id == "p2" {
			return errConnRefused
		}
		return nil
	})

	r, queue, dead := newTestResolver(t, primary)
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p1", Name: "one"})
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p2", Name: "two"})
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p3", Name: "three"})

	result, err := r.ReplayAll(ctx)

	require.Error(t, err)
	assert.Equal(t, 1, result.Applied)

	// The failing op and the unapplied tail stay queued, in order.
	ops := queue.Snapshot()
	require.Len(t, ops, 2)
	assert.Equal(t, "p2", ops[0].TargetID)
	assert.Equal(t, "p3", ops[1].TargetID)

	n, derr := dead.Len()
	require.NoError(t, derr)
	assert.Equal(t, 0, n, "connectivity failures must never dead-letter")
}

func TestResolver_PersistentFailureDeadLetters(t *testing.T) {
	ctx := context.Background()
	primary := newFakePrimary()
	errNoTable := errors.New("SQL logic error: no such table: records (1)")
	primary.setHook(func(op string, et models.EntityType, id string) error {
		if id == "p2" {
			return errNoTable
		}
		return nil
	})

	r, queue, dead := newTestResolver(t, primary)
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p1", Name: "one"})
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p2", Name: "two"})
	enqueue(t, queue, models.OpCreate, &models.Profile{ID: "p3", Name: "three"})

	result, err := r.ReplayAll(ctx)

	require.NoError(t, err, "non-connectivity failures must not abort the pass")
	assert.Equal(t, 2, result.Applied)
	assert.Equal(t, 1, result.DeadLettered)
	assert.Equal(t, 0, queue.Len())

	letters, derr := dead.List()
	require.NoError(t, derr)
	require.Len(t, letters, 1)
	assert.Equal(t, "p2", letters[0].Op.TargetID)
	assert.Equal(t, 1+replayMaxRetries, letters[0].Attempts)
	assert.Contains(t, letters[0].LastError, "no such table")
	assert.NotEmpty(t, letters[0].ID)
}

func TestResolver_EmptyQueueIsANoOp(t *testing.T) {
	primary := newFakePrimary()
	r, _, _ := newTestResolver(t, primary)

	result, err := r.ReplayAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Applied)
	assert.Equal(t, 0, result.DeadLettered)
}
