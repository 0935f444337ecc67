package offline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
	"github.com/mcpwatch/mcpwatch/internal/storage/mirror"
)

// Primer loads a full snapshot of every mirrored collection from the
// primary into the mirror store.
type Primer struct {
	primary storage.Primary
	mirror  *mirror.Store
	queue   *Queue
	state   *ConnectivityState
	logger  *slog.Logger

	// persist flushes the queue after residual entries are cleared.
	persist func(ctx context.Context)
}

// NewPrimer wires a primer over the primary, the mirror, and the shared
// queue and state.
func NewPrimer(primary storage.Primary, mirrorStore *mirror.Store, queue *Queue, state *ConnectivityState, logger *slog.Logger, persist func(ctx context.Context)) *Primer {
	return &Primer{
		primary: primary,
		mirror:  mirrorStore,
		queue:   queue,
		state:   state,
		logger:  logger,
		persist: persist,
	}
}

// Prime runs a minimal liveness query and then loads each mirrored
// collection independently; a failure in one collection does not abort
// the others. On success the mirror is marked primed and the subsystem
// goes online.
//
// clearResidual is set only on the startup prime: entries restored from
// the state file of a previous process lifetime are superseded by the
// fresh snapshot and dropped. A re-prime after replay must never clear;
// an operation enqueued by a concurrent gateway fallback is removed only
// by the replay pass that applies it.
//
// Only the liveness failure propagates; per-collection loads fail
// silently (logged).
func (p *Primer) Prime(ctx context.Context, clearResidual bool) error {
	if err := p.primary.Ping(ctx); err != nil {
		p.state.SetOnline(false)
		return fmt.Errorf("priming liveness check failed: %w", err)
	}

	for _, t := range models.MirroredEntityTypes {
		entities, err := p.primary.List(ctx, t)
		if err != nil {
			p.logger.Warn("failed to load collection snapshot, mirror partially primed",
				"entity_type", t, "error", err)
			continue
		}
		if err := p.mirror.ReplaceAll(t, entities); err != nil {
			p.logger.Warn("failed to install collection snapshot",
				"entity_type", t, "error", err)
			continue
		}
		p.logger.Debug("primed collection", "entity_type", t, "records", len(entities))
	}

	if residual := p.queue.Len(); clearResidual && residual > 0 {
		p.logger.Info("dropping residual offline operations superseded by fresh snapshot",
			"count", residual)
		p.queue.Clear()
		if p.persist != nil {
			p.persist(ctx)
		}
	}

	p.state.SetMirrorPrimed(true)
	p.state.SetOnline(true)

	return nil
}
