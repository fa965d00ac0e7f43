// Package store persists assets, price and signal observations, saved
// portfolios and job records. Every write is an upsert keyed on the natural
// uniqueness constraint and each batch commits atomically.
package store

import (
	"database/sql"
	"time"

	"github.com/rs/zerolog"
)

// Store is the single owner of persisted entities
type Store struct {
	db  *sql.DB
	log zerolog.Logger
	now func() time.Time
}

// New creates a store over an open, migrated database
func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("component", "store").Logger(),
		now: time.Now,
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
