package store

import (
	"database/sql"
	"errors"

	"github.com/memkeep/memkeep/internal/models"
)

// Counter names persisted across restarts.
const (
	CounterSuppressed = "suppressed"
	CounterMerged     = "merged"
)

// CounterStore persists monotonic operational counters.
type CounterStore struct {
	db *DB
}

func NewCounterStore(db *DB) *CounterStore {
	return &CounterStore{db: db}
}

// Increment bumps a named counter, creating it at 1 if absent.
func (s *CounterStore) Increment(name string) error {
	_, err := s.db.Exec(`
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`,
		name,
	)
	return models.StoreIO("increment counter", err)
}

// Get returns the current value of a counter, 0 when it has never been
// incremented.
func (s *CounterStore) Get(name string) (int64, error) {
	var value int64
	err := s.db.QueryRow("SELECT value FROM counters WHERE name = ?", name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, models.StoreIO("get counter", err)
	}
	return value, nil
}
