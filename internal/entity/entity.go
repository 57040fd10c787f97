// Package entity is the typed CRUD layer over the events and items tables.
// Every foreign-key and check constraint of the schema is re-stated here as
// an explicit invariant that runs inside the write transaction before commit.
package entity

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lifeline/internal/store"
)

// PlacementPurger removes canvas placements on behalf of the entity store.
// The canvas index owns those rows; the purge runs inside the caller's tx.
type PlacementPurger interface {
	PurgeItemsTx(ctx context.Context, tx *sql.Tx, itemIDs []string) (int64, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the source of created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides identifier assignment.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store owns Event and Item rows.
type Store struct {
	db     *store.DB
	purger PlacementPurger
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New creates an entity store on db. purger is called whenever items are
// removed or moved so that no placement outlives its item.
func New(db *store.DB, purger PlacementPurger, opts ...Option) *Store {
	s := &Store{
		db:     db,
		purger: purger,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
