package offline

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage/mirror"
)

// fakePrimary is an in-memory stand-in for the SQLite primary with
// injectable failures. A global err fails every operation; a hook can
// fail selectively per operation.
type fakePrimary struct {
	mu   sync.Mutex
	data *mirror.Store
	err  error
	hook func(op string, t models.EntityType, id string) error
}

func newFakePrimary() *fakePrimary {
	return &fakePrimary{data: mirror.New()}
}

func (f *fakePrimary) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakePrimary) setHook(hook func(op string, t models.EntityType, id string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

func (f *fakePrimary) fail(op string, t models.EntityType, id string) error {
	f.mu.Lock()
	hook := f.hook
	err := f.err
	f.mu.Unlock()

	// The hook runs outside the lock so tests can block inside it while
	// other goroutines keep using the fake.
	if hook != nil {
		if herr := hook(op, t, id); herr != nil {
			return herr
		}
	}
	return err
}

func (f *fakePrimary) Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	if err := f.fail("get", t, id); err != nil {
		return nil, err
	}
	return f.data.Get(ctx, t, id)
}

func (f *fakePrimary) List(ctx context.Context, t models.EntityType) ([]models.Entity, error) {
	if err := f.fail("list", t, ""); err != nil {
		return nil, err
	}
	return f.data.List(ctx, t)
}

func (f *fakePrimary) Create(ctx context.Context, e models.Entity) error {
	if err := f.fail("create", e.Type(), e.EntityID()); err != nil {
		return err
	}
	return f.data.Create(ctx, e)
}

func (f *fakePrimary) Update(ctx context.Context, e models.Entity) error {
	if err := f.fail("update", e.Type(), e.EntityID()); err != nil {
		return err
	}
	return f.data.Update(ctx, e)
}

func (f *fakePrimary) Delete(ctx context.Context, t models.EntityType, id string) error {
	if err := f.fail("delete", t, id); err != nil {
		return err
	}
	return f.data.Delete(ctx, t, id)
}

func (f *fakePrimary) Ping(ctx context.Context) error {
	return f.fail("ping", "", "")
}

func (f *fakePrimary) Close() error {
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
