package offline

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// deadLetterBucket stores parked operations keyed by failure time.
var deadLetterBucket = []byte("dead_letters")

// DeadLetters is the durable store for operations that exhausted their
// replay attempts. Entries survive restarts and are exposed through the
// diagnostics surface; nothing removes them automatically.
type DeadLetters struct {
	db *bbolt.DB
}

// OpenDeadLetters opens (or creates) the dead-letter database at path.
func OpenDeadLetters(path string) (*DeadLetters, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open dead-letter db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(deadLetterBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize dead-letter db: %w", err)
	}

	return &DeadLetters{db: db}, nil
}

// Close closes the underlying database.
func (d *DeadLetters) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Append parks one dead letter.
func (d *DeadLetters) Append(dl models.DeadLetter) error {
	if d.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	// Keys sort by failure time so List returns letters in the order
	// they were parked.
	key := fmt.Sprintf("%020d-%s", dl.FailedAt.UnixNano(), dl.ID)

	err = d.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(deadLetterBucket)
		if bucket == nil {
			return storage.ErrStorageClosed
		}
		if err := bucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to save dead letter: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter transaction failed: %w", err)
	}

	return nil
}

// List returns all dead letters in park order.
func (d *DeadLetters) List() ([]models.DeadLetter, error) {
	if d.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var letters []models.DeadLetter

	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(deadLetterBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var dl models.DeadLetter
			if err := json.Unmarshal(v, &dl); err != nil {
				return fmt.Errorf("failed to unmarshal dead letter: %w", err)
			}
			letters = append(letters, dl)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	return letters, nil
}

// Len returns the number of parked dead letters.
func (d *DeadLetters) Len() (int, error) {
	if d.db == nil {
		return 0, storage.ErrStorageClosed
	}

	count := 0
	err := d.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(deadLetterBucket)
		if bucket == nil {
			return nil
		}
		count = bucket.Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}

	return count, nil
}
