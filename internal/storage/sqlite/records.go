package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// Get retrieves a single record by entity type and id
// Returns storage.ErrNotFound if the record doesn't exist
func (s *Storage) Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error) {
	if !models.IsMirrored(t) {
		return nil, storage.ErrUnknownEntityType
	}

	query := `
		SELECT payload
		FROM records
		WHERE entity_type = ? AND id = ?
	`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, string(t), id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	entity, err := models.DecodeEntity(t, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored record: %w", err)
	}

	return entity, nil
}

// List returns all records of the given entity type ordered by creation
// Returns an empty slice if no records are found
func (s *Storage) List(ctx context.Context, t models.EntityType) ([]models.Entity, error) {
	if !models.IsMirrored(t) {
		return nil, storage.ErrUnknownEntityType
	}

	query := `
		SELECT payload
		FROM records
		WHERE entity_type = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(t))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var entities []models.Entity
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		entity, err := models.DecodeEntity(t, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored record: %w", err)
		}

		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entities, nil
}

// Create inserts a new record
// Returns storage.ErrAlreadyExists on a duplicate id
func (s *Storage) Create(ctx context.Context, e models.Entity) error {
	if !models.IsMirrored(e.Type()) {
		return storage.ErrUnknownEntityType
	}

	payload, err := models.EncodeEntity(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO records (entity_type, id, payload, updated_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		string(e.Type()),
		e.EntityID(),
		payload,
		e.VersionStamp(),
		time.Now().Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// Update replaces an existing record by id
// Returns storage.ErrNotFound if the record doesn't exist
func (s *Storage) Update(ctx context.Context, e models.Entity) error {
	if !models.IsMirrored(e.Type()) {
		return storage.ErrUnknownEntityType
	}

	payload, err := models.EncodeEntity(e)
	if err != nil {
		return err
	}

	query := `
		UPDATE records
		SET payload = ?, updated_at = ?
		WHERE entity_type = ? AND id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		payload,
		e.VersionStamp(),
		string(e.Type()),
		e.EntityID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Delete removes a record by id. Deleting a missing record is a no-op,
// which keeps offline replay of deletes idempotent.
func (s *Storage) Delete(ctx context.Context, t models.EntityType, id string) error {
	if !models.IsMirrored(t) {
		return storage.ErrUnknownEntityType
	}

	query := `
		DELETE FROM records
		WHERE entity_type = ? AND id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, string(t), id); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// violation. modernc.org/sqlite surfaces these only through the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
