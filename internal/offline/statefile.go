package offline

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/sethvargo/go-retry"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

// DefaultStatePath is the state file location used when none is
// configured, relative to the process working directory.
const DefaultStatePath = "mcpwatch-offline-state.json"

//go:embed state.schema.json
var stateSchemaJSON string

// stateDocument is the persisted form of the offline queue and the
// conflict audit trail: a single JSON document with two arrays.
type stateDocument struct {
	OfflineOps       []models.OfflineOp       `json:"offlineOps"`
	OfflineConflicts []models.OfflineConflict `json:"offlineConflicts"`
}

// StateFile persists the offline queue and conflict trail to disk.
// Writes are synchronous with a bounded retry; a write that still fails
// is reported to the caller, who logs and swallows it (durability is
// best-effort, not guaranteed).
type StateFile struct {
	path   string
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewStateFile creates a state file handle at path and compiles the
// embedded document schema.
func NewStateFile(path string, logger *slog.Logger) (*StateFile, error) {
	if path == "" {
		path = DefaultStatePath
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(stateSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse state schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("state.schema.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add state schema resource: %w", err)
	}

	schema, err := compiler.Compile("state.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile state schema: %w", err)
	}

	return &StateFile{
		path:   path,
		schema: schema,
		logger: logger,
	}, nil
}

// Path returns the configured state file location.
func (f *StateFile) Path() string {
	return f.path
}

// Load reads the state document from disk, validating it against the
// schema before decoding. A missing file yields empty state; a corrupt
// or invalid file is an error so that startup can surface it.
func (f *StateFile) Load() ([]models.OfflineOp, []models.OfflineConflict, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to read state file: %w", err)
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("state file is not valid JSON: %w", err)
	}
	if err := f.schema.Validate(inst); err != nil {
		return nil, nil, fmt.Errorf("state file failed schema validation: %w", err)
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to decode state file: %w", err)
	}

	return doc.OfflineOps, doc.OfflineConflicts, nil
}

// Save writes the state document to disk via a temp file and rename so a
// crash mid-write never leaves a truncated document. Retries up to three
// attempts with constant backoff.
func (f *StateFile) Save(ctx context.Context, ops []models.OfflineOp, conflicts []models.OfflineConflict) error {
	doc := stateDocument{
		OfflineOps:       ops,
		OfflineConflicts: conflicts,
	}
	if doc.OfflineOps == nil {
		doc.OfflineOps = []models.OfflineOp{}
	}
	if doc.OfflineConflicts == nil {
		doc.OfflineConflicts = []models.OfflineConflict{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state document: %w", err)
	}

	backoff := retry.WithMaxRetries(2, retry.NewConstant(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if werr := f.writeAtomic(data); werr != nil {
			return retry.RetryableError(werr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// writeAtomic writes data next to the target and renames it into place.
func (f *StateFile) writeAtomic(data []byte) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}
