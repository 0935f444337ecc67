package offline

import (
	"sync"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// Queue is the in-memory side of the offline queue: a FIFO list of
// mutation intents plus the append-only conflict audit trail. Durability
// is handled by StateFile; the queue itself is purely ordered memory.
type Queue struct {
	mu        sync.RWMutex
	ops       []models.OfflineOp
	conflicts []models.OfflineConflict
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Append adds one operation to the tail of the queue. Operations for
// entity types outside the mirrored set are rejected, which keeps the
// queue's closed-set invariant.
func (q *Queue) Append(op models.OfflineOp) error {
	if !models.IsMirrored(op.EntityType) {
		return storage.ErrUnknownEntityType
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = append(q.ops, op)
	return nil
}

// AppendConflict records one entry in the conflict audit trail. Conflicts
// are never removed.
func (q *Queue) AppendConflict(c models.OfflineConflict) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.conflicts = append(q.conflicts, c)
}

// Snapshot returns a copy of the queued operations in enqueue order.
func (q *Queue) Snapshot() []models.OfflineOp {
	q.mu.RLock()
	defer q.mu.RUnlock()
	ops := make([]models.OfflineOp, len(q.ops))
	copy(ops, q.ops)
	return ops
}

// Conflicts returns a copy of the conflict audit trail.
func (q *Queue) Conflicts() []models.OfflineConflict {
	q.mu.RLock()
	defer q.mu.RUnlock()
	conflicts := make([]models.OfflineConflict, len(q.conflicts))
	copy(conflicts, q.conflicts)
	return conflicts
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.ops)
}

// Clear drops all queued operations. The conflict trail is kept.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = nil
}

// DropPrefix removes the first n operations, those already applied by a
// replay pass. Operations appended concurrently during the pass survive.
func (q *Queue) DropPrefix(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n <= 0 {
		return
	}
	if n >= len(q.ops) {
		q.ops = nil
		return
	}
	q.ops = append([]models.OfflineOp(nil), q.ops[n:]...)
}

// Restore loads operations and conflicts recovered from the state file.
// Called once at construction, before priming.
func (q *Queue) Restore(ops []models.OfflineOp, conflicts []models.OfflineConflict) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops = ops
	q.conflicts = conflicts
}
