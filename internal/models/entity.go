package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EntityType identifies one of the mirrored collections tracked by both
// the primary store and the in-memory mirror.
type EntityType string

// The closed set of mirrored entity types. Operations on anything outside
// this set are never queued or mirrored.
const (
	EntityProfile      EntityType = "profile"
	EntityProblem      EntityType = "problem"
	EntityMetric       EntityType = "metric"
	EntityLog          EntityType = "log"
	EntityPlugin       EntityType = "plugin"
	EntityServer       EntityType = "server"
	EntityServerMetric EntityType = "server_metric"
)

// MirroredEntityTypes lists every mirrored entity type in priming order.
var MirroredEntityTypes = []EntityType{
	EntityProfile,
	EntityProblem,
	EntityMetric,
	EntityLog,
	EntityPlugin,
	EntityServer,
	EntityServerMetric,
}

// IsMirrored reports whether t belongs to the mirrored set.
func IsMirrored(t EntityType) bool {
	switch t {
	case EntityProfile, EntityProblem, EntityMetric, EntityLog,
		EntityPlugin, EntityServer, EntityServerMetric:
		return true
	}
	return false
}

// Entity is implemented by every mirrored domain record.
type Entity interface {
	// Type returns the mirrored entity type of the record.
	Type() EntityType

	// EntityID returns the record identifier.
	EntityID() string

	// VersionStamp returns the record's RFC3339 last-modified stamp,
	// or "" for entity types that are not subject to conflict
	// resolution.
	VersionStamp() string
}

// VersionField returns the JSON field name carrying the version stamp for
// the given entity type, or "" if the type has no version stamp.
func VersionField(t EntityType) string {
	switch t {
	case EntityProfile, EntityPlugin:
		return "updatedAt"
	case EntityServer:
		return "lastUpdate"
	}
	return ""
}

// DecodeEntity decodes a raw JSON payload into the typed record for the
// given entity type. Unknown fields are rejected so that malformed
// payloads are caught at enqueue time rather than at replay time.
func DecodeEntity(t EntityType, payload []byte) (Entity, error) {
	var e Entity
	switch t {
	case EntityProfile:
		e = &Profile{}
	case EntityProblem:
		e = &Problem{}
	case EntityMetric:
		e = &MetricSample{}
	case EntityLog:
		e = &LogEntry{}
	case EntityPlugin:
		e = &Plugin{}
	case EntityServer:
		e = &Server{}
	case EntityServerMetric:
		e = &ServerMetric{}
	default:
		return nil, fmt.Errorf("unknown entity type %q", t)
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(e); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}

	if e.EntityID() == "" {
		return nil, fmt.Errorf("%s payload has empty id", t)
	}

	return e, nil
}

// EncodeEntity marshals a typed record back into its JSON payload form.
func EncodeEntity(e Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Type(), err)
	}
	return data, nil
}
