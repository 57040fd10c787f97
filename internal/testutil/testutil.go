// Package testutil provides shared test helpers for opening temporary stores
// and seeding hierarchies.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/lifeline/internal/canvas"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/query"
	"github.com/starford/lifeline/internal/store"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB opens a migrated store in a temporary directory that is closed and
// removed when the test ends.
func TestDB(t testing.TB, opts ...store.Option) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lifeline-test.db")
	db, err := store.Open(context.Background(), path, append([]store.Option{store.WithLogger(Logger())}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// Stores bundles the layers wired the way the application wires them.
type Stores struct {
	DB       *store.DB
	Entities *entity.Store
	Canvas   *canvas.Index
	Query    *query.Layer
}

// TestStores opens a temporary store and wires every layer on top of it.
func TestStores(t testing.TB, opts ...entity.Option) *Stores {
	t.Helper()
	db := TestDB(t)
	idx := canvas.New(db, canvas.WithLogger(Logger()))
	ents := entity.New(db, idx, append([]entity.Option{entity.WithLogger(Logger())}, opts...)...)
	return &Stores{
		DB:       db,
		Entities: ents,
		Canvas:   idx,
		Query:    query.New(ents, idx, Logger()),
	}
}

// MustEvent creates an event and fails the test on error.
func (s *Stores) MustEvent(t testing.TB, kind models.EventKind, start, parentID string) string {
	t.Helper()
	id, err := s.Entities.CreateEvent(context.Background(), entity.NewEvent{
		Kind:     kind,
		Title:    string(kind) + " " + start,
		StartAt:  start,
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("create %s: %v", kind, err)
	}
	return id
}

// MustItem creates a text item and fails the test on error.
func (s *Stores) MustItem(t testing.TB, eventID, content string) string {
	t.Helper()
	id, err := s.Entities.CreateItem(context.Background(), entity.NewItem{
		EventID: eventID,
		Type:    models.ItemText,
		Content: content,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return id
}
