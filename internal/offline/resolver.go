package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// replayMaxRetries is the number of additional attempts a failing replay
// gets before the operation is dead-lettered.
const replayMaxRetries = 2

// mergePolicy names the payload fields that get structural merging when a
// replayed update conflicts with a newer primary record. Everything else
// is last-write-wins, offline-biased.
type mergePolicy struct {
	objectFields []string
	arrayFields  []string
}

var mergePolicies = map[models.EntityType]mergePolicy{
	models.EntityProfile: {
		objectFields: []string{"settings"},
		arrayFields:  []string{"checks"},
	},
	models.EntityPlugin: {
		objectFields: []string{"config"},
	},
	models.EntityServer: {
		objectFields: []string{"metadata"},
		arrayFields:  []string{"tools"},
	},
}

// ReplayResult summarizes one replay pass over the offline queue.
type ReplayResult struct {
	Applied      int // operations applied against the primary
	AlreadyThere int // creates dropped as already applied
	Conflicts    int // version conflicts detected and merged
	DeadLettered int // operations parked after exhausting retries
}

// Resolver replays queued offline operations against the primary,
// merging conflicting concurrent changes as it goes.
type Resolver struct {
	primary storage.Primary
	queue   *Queue
	dead    *DeadLetters
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver wires a resolver over the primary, the shared queue, and
// the dead-letter store.
func NewResolver(primary storage.Primary, queue *Queue, dead *DeadLetters, logger *slog.Logger) *Resolver {
	return &Resolver{
		primary: primary,
		queue:   queue,
		dead:    dead,
		logger:  logger,
		now:     time.Now,
	}
}

// ReplayAll replays the current queue snapshot sequentially in enqueue
// order. Each operation gets a bounded retry; an operation that still
// fails is dead-lettered and the pass continues. A connectivity-class
// failure aborts the pass, keeping the unapplied tail queued.
func (r *Resolver) ReplayAll(ctx context.Context) (*ReplayResult, error) {
	ops := r.queue.Snapshot()
	result := &ReplayResult{}

	for i, op := range ops {
		if err := r.replayWithRetry(ctx, op, result); err != nil {
			r.queue.DropPrefix(i)
			return result, fmt.Errorf("replay aborted at operation %d of %d: %w", i+1, len(ops), err)
		}
	}

	r.queue.DropPrefix(len(ops))
	return result, nil
}

// replayWithRetry retries non-connectivity failures with exponential
// backoff, then parks the operation as a dead letter. Connectivity
// failures propagate so the whole pass can abort without consuming the
// operation.
func (r *Resolver) replayWithRetry(ctx context.Context, op models.OfflineOp, result *ReplayResult) error {
	attempts := 0
	backoff := retry.WithMaxRetries(replayMaxRetries, retry.NewExponential(100*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := r.replayOne(ctx, op, result)
		if err == nil {
			return nil
		}
		if Classify(err) == KindConnectivity {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		return nil
	}

	if Classify(err) == KindConnectivity {
		return err
	}

	dl := models.DeadLetter{
		ID:        uuid.New().String(),
		Op:        op,
		Attempts:  attempts,
		LastError: err.Error(),
		FailedAt:  r.now(),
	}
	if derr := r.dead.Append(dl); derr != nil {
		r.logger.Error("failed to park dead letter, operation dropped",
			"entity_type", op.EntityType, "op", op.Op, "target_id", op.TargetID, "error", derr)
	} else {
		r.logger.Warn("replay failed, operation dead-lettered",
			"entity_type", op.EntityType, "op", op.Op, "target_id", op.TargetID,
			"attempts", attempts, "error", err)
	}
	result.DeadLettered++

	return nil
}

// replayOne applies a single queued operation against the primary.
func (r *Resolver) replayOne(ctx context.Context, op models.OfflineOp, result *ReplayResult) error {
	switch op.Op {
	case models.OpCreate:
		entity, err := models.DecodeEntity(op.EntityType, op.Payload)
		if err != nil {
			return err
		}
		err = r.primary.Create(ctx, entity)
		if errors.Is(err, storage.ErrAlreadyExists) {
			// A prior partial replay already landed this record.
			r.logger.Debug("create already applied, dropping",
				"entity_type", op.EntityType, "target_id", op.TargetID)
			result.AlreadyThere++
			return nil
		}
		if err != nil {
			return err
		}
		result.Applied++
		return nil

	case models.OpDelete:
		if err := r.primary.Delete(ctx, op.EntityType, op.TargetID); err != nil {
			return err
		}
		result.Applied++
		return nil

	case models.OpUpdate:
		return r.replayUpdate(ctx, op, result)

	default:
		return fmt.Errorf("unknown op type %q", op.Op)
	}
}

// replayUpdate applies a queued update, detecting and merging a version
// conflict when the primary's stamp no longer matches the queued base.
func (r *Resolver) replayUpdate(ctx context.Context, op models.OfflineOp, result *ReplayResult) error {
	queued, err := models.DecodeEntity(op.EntityType, op.Payload)
	if err != nil {
		return err
	}

	targetID := op.TargetID
	if targetID == "" {
		targetID = queued.EntityID()
	}

	current, err := r.primary.Get(ctx, op.EntityType, targetID)
	if errors.Is(err, storage.ErrNotFound) {
		// Record vanished from the primary while we were offline; the
		// queued payload is the only surviving copy.
		if cerr := r.primary.Create(ctx, queued); cerr != nil {
			return cerr
		}
		result.Applied++
		return nil
	}
	if err != nil {
		return err
	}

	remoteStamp := current.VersionStamp()
	if op.BaseTimestamp == "" || remoteStamp == "" || remoteStamp == op.BaseTimestamp {
		// No divergence detected: apply the queued payload directly.
		if uerr := r.applyPayload(ctx, op.EntityType, op.Payload); uerr != nil {
			return uerr
		}
		result.Applied++
		return nil
	}

	merged, err := r.mergeConflict(op.EntityType, current, op.Payload)
	if err != nil {
		return err
	}
	if err := r.applyPayload(ctx, op.EntityType, merged); err != nil {
		return err
	}

	r.queue.AppendConflict(models.OfflineConflict{
		EntityType:      op.EntityType,
		TargetID:        targetID,
		Kind:            models.ConflictVersionMismatch,
		BaseTimestamp:   op.BaseTimestamp,
		RemoteTimestamp: remoteStamp,
		ResolvedAt:      r.now(),
	})
	r.logger.Info("merged conflicting offline update",
		"entity_type", op.EntityType, "target_id", targetID,
		"base_timestamp", op.BaseTimestamp, "remote_timestamp", remoteStamp)

	result.Applied++
	result.Conflicts++
	return nil
}

// applyPayload writes a payload back to the primary with a fresh version
// stamp.
func (r *Resolver) applyPayload(ctx context.Context, t models.EntityType, payload json.RawMessage) error {
	fields, err := decodeFields(payload)
	if err != nil {
		return err
	}

	if f := models.VersionField(t); f != "" {
		fields[f] = r.now().UTC().Format(time.RFC3339Nano)
	}

	entity, err := encodeFields(t, fields)
	if err != nil {
		return err
	}

	return r.primary.Update(ctx, entity)
}

// mergeConflict merges a queued payload over the primary's current record
// per the entity type's merge policy: allow-listed object fields are
// shallow-merged (offline wins per key), allow-listed array fields are
// unioned by structural equality (primary elements first), and every
// other top-level field takes the queued value.
func (r *Resolver) mergeConflict(t models.EntityType, current models.Entity, queuedPayload json.RawMessage) (json.RawMessage, error) {
	currentPayload, err := models.EncodeEntity(current)
	if err != nil {
		return nil, err
	}
	base, err := decodeFields(currentPayload)
	if err != nil {
		return nil, err
	}
	over, err := decodeFields(queuedPayload)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = v
	}

	policy := mergePolicies[t]
	for _, f := range policy.objectFields {
		baseObj, _ := base[f].(map[string]any)
		overObj, _ := over[f].(map[string]any)
		if baseObj == nil && overObj == nil {
			continue
		}
		merged[f] = mergeObjects(baseObj, overObj)
	}
	for _, f := range policy.arrayFields {
		baseArr, baseOK := base[f].([]any)
		overArr, overOK := over[f].([]any)
		if !baseOK && !overOK {
			continue
		}
		merged[f] = unionArrays(baseArr, overArr)
	}

	return json.Marshal(merged)
}

// mergeObjects shallow-merges the queued object over the primary's:
// primary keys first, queued keys win on collision.
func mergeObjects(base, over map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(over))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range over {
		out[k] = v
	}
	return out
}

// unionArrays unions two arrays by serialized equality, primary elements
// first, queued elements appended, duplicates dropped.
func unionArrays(base, over []any) []any {
	out := make([]any, 0, len(base)+len(over))
	seen := make(map[string]struct{}, len(base)+len(over))

	add := func(v any) {
		key, err := json.Marshal(v)
		if err != nil {
			out = append(out, v)
			return
		}
		if _, dup := seen[string(key)]; dup {
			return
		}
		seen[string(key)] = struct{}{}
		out = append(out, v)
	}

	for _, v := range base {
		add(v)
	}
	for _, v := range over {
		add(v)
	}

	return out
}

// decodeFields unmarshals a payload into its top-level field map.
func decodeFields(payload json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode payload fields: %w", err)
	}
	return fields, nil
}

// encodeFields marshals a field map back into the typed record.
func encodeFields(t models.EntityType, fields map[string]any) (models.Entity, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload fields: %w", err)
	}
	return models.DecodeEntity(t, data)
}
