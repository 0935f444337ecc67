package offline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

// QueueRecord describes how a mutation should be recorded in the offline
// queue if the primary attempt fails and the mirror absorbs it.
type QueueRecord struct {
	EntityType models.EntityType
	Op         models.OpType
	TargetID   string

	// Payload is the typed record being written. Nil for delete.
	Payload models.Entity
}

// Gateway is the single call path every storage operation passes through.
// It runs the primary operation first and, on a connectivity-class
// failure, transparently falls back to the mirror and records the
// mutation intent for later replay.
type Gateway struct {
	state  *ConnectivityState
	queue  *Queue
	warn   *dedupLogger
	logger *slog.Logger

	// persist writes the queue and conflict trail to the state file.
	// Failures are logged and swallowed inside.
	persist func(ctx context.Context)

	// onRecovered is invoked asynchronously when a primary call
	// succeeds while the state was offline, to flush any remnants.
	onRecovered func()

	now func() time.Time
}

// NewGateway wires a gateway over shared connectivity state and queue.
func NewGateway(state *ConnectivityState, queue *Queue, logger *slog.Logger, persist func(ctx context.Context), onRecovered func()) *Gateway {
	return &Gateway{
		state:       state,
		queue:       queue,
		warn:        newDedupLogger(logger),
		logger:      logger,
		persist:     persist,
		onRecovered: onRecovered,
		now:         time.Now,
	}
}

// Execute runs primaryOp first. On success the result is returned and, if
// the subsystem was offline, a resync is scheduled. On a
// connectivity-class failure the mirrorOp serves the caller and, when rec
// is supplied, the mutation is queued for replay. Failures of any other
// class, and failures with no mirrorOp, propagate unchanged.
func Execute[T any](ctx context.Context, g *Gateway, primaryOp func(context.Context) (T, error), mirrorOp func(context.Context) (T, error), rec *QueueRecord) (T, error) {
	var zero T

	result, err := primaryOp(ctx)
	if err == nil {
		if g.state.SetOnline(true) {
			g.logger.Info("primary store reachable again, scheduling resync")
			if g.onRecovered != nil {
				go g.onRecovered()
			}
		}
		return result, nil
	}

	if Classify(err) != KindConnectivity {
		return zero, err
	}

	g.warn.Warn(ctx, "primary store unreachable", err)
	if g.state.SetOnline(false) {
		g.logger.Info("entering offline mode, serving from mirror")
	}

	// Some operations (priming itself, raw passthroughs) have no
	// fallback; their failures belong to the caller.
	if mirrorOp == nil {
		return zero, err
	}

	mirrorResult, mirrorErr := mirrorOp(ctx)
	if mirrorErr != nil {
		return zero, fmt.Errorf("mirror fallback failed: %w", mirrorErr)
	}

	if rec != nil {
		g.record(ctx, rec)
	}

	return mirrorResult, nil
}

// record appends one offline operation for a fallen-back mutation and
// persists the queue. Entity types outside the mirrored set are never
// queued.
func (g *Gateway) record(ctx context.Context, rec *QueueRecord) {
	if !models.IsMirrored(rec.EntityType) {
		return
	}

	op := models.OfflineOp{
		EntityType: rec.EntityType,
		Op:         rec.Op,
		TargetID:   rec.TargetID,
		EnqueuedAt: g.now(),
	}

	if rec.Payload != nil {
		payload, err := models.EncodeEntity(rec.Payload)
		if err != nil {
			g.logger.Warn("failed to encode queued payload, operation not recorded",
				"entity_type", rec.EntityType, "target_id", rec.TargetID, "error", err)
			return
		}
		// Validate the payload now; a malformed intent must be refused
		// here, not discovered at replay.
		if _, err := models.DecodeEntity(rec.EntityType, payload); err != nil {
			g.logger.Warn("rejected malformed offline payload, operation not recorded",
				"entity_type", rec.EntityType, "target_id", rec.TargetID, "error", err)
			return
		}
		op.Payload = payload
		op.BaseTimestamp = rec.Payload.VersionStamp()
		if op.TargetID == "" {
			op.TargetID = rec.Payload.EntityID()
		}
	}

	if op.TargetID == "" && op.Payload == nil {
		g.logger.Warn("rejected offline operation without target id",
			"entity_type", rec.EntityType, "op", rec.Op)
		return
	}

	if err := g.queue.Append(op); err != nil {
		g.logger.Warn("failed to queue offline operation",
			"entity_type", rec.EntityType, "target_id", rec.TargetID, "error", err)
		return
	}

	g.logger.Debug("queued offline operation",
		"entity_type", rec.EntityType, "op", rec.Op, "target_id", op.TargetID)

	if g.persist != nil {
		g.persist(ctx)
	}
}
