package models

import (
	"encoding/json"
	"time"
)

// OpType is the kind of mutation recorded in the offline queue.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// OfflineOp is a queued mutation intent recorded while the primary store
// is unreachable, awaiting replay. Ops are totally ordered by enqueue
// time (FIFO) and replay must preserve that order.
type OfflineOp struct {
	EntityType EntityType `json:"entityType"`
	Op         OpType     `json:"opType"`

	// TargetID is the affected record id. Set for update and delete.
	TargetID string `json:"targetId,omitempty"`

	// Payload is the typed record as JSON. Empty for delete.
	Payload json.RawMessage `json:"payload,omitempty"`

	// BaseTimestamp is the version stamp the payload was based on,
	// captured from the payload's version field at enqueue time.
	// Update ops carrying a base timestamp get conflict detection at
	// replay.
	BaseTimestamp string `json:"baseTimestamp,omitempty"`

	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// ConflictKind classifies a detected replay conflict.
type ConflictKind string

// ConflictVersionMismatch is recorded when the primary's version stamp no
// longer matches a queued update's base timestamp.
const ConflictVersionMismatch ConflictKind = "version_mismatch"

// OfflineConflict is one entry of the append-only conflict audit trail,
// written whenever replay detects that the primary diverged from a queued
// operation's assumed base version.
type OfflineConflict struct {
	EntityType      EntityType   `json:"entityType"`
	TargetID        string       `json:"targetId"`
	Kind            ConflictKind `json:"conflictKind"`
	BaseTimestamp   string       `json:"baseTimestamp,omitempty"`
	RemoteTimestamp string       `json:"remoteTimestamp,omitempty"`
	ResolvedAt      time.Time    `json:"resolvedAt"`
}

// DeadLetter is an offline operation that exhausted its replay attempts
// and was parked for operator inspection instead of being retried.
type DeadLetter struct {
	ID        string    `json:"id"`
	Op        OfflineOp `json:"op"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}
