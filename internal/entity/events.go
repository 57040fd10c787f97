package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
)

// NewEvent is the input of CreateEvent. Empty strings mean "absent".
type NewEvent struct {
	Kind         models.EventKind `json:"type"`
	Title        string           `json:"title,omitempty"`
	StartAt      string           `json:"start_at"`
	EndAt        string           `json:"end_at,omitempty"`
	ParentID     string           `json:"parent_id,omitempty"`
	CoverMediaID string           `json:"cover_media_id,omitempty"`
}

// Validate implements validation.Validatable.
func (n NewEvent) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Kind),
		validation.Field(&n.StartAt, validation.Required, models.IsInstant),
		validation.Field(&n.EndAt, models.IsInstant),
	)
}

// EventPatch lists the fields UpdateEvent changes. A nil field is left alone;
// a pointer to "" clears an optional field.
type EventPatch struct {
	Kind         *models.EventKind `json:"type,omitempty"`
	Title        *string           `json:"title,omitempty"`
	StartAt      *string           `json:"start_at,omitempty"`
	EndAt        *string           `json:"end_at,omitempty"`
	ParentID     *string           `json:"parent_id,omitempty"`
	CoverMediaID *string           `json:"cover_media_id,omitempty"`
}

// Validate implements validation.Validatable.
func (p EventPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Kind),
		validation.Field(&p.StartAt, validation.NilOrNotEmpty, models.IsInstant),
		validation.Field(&p.EndAt, models.IsInstant),
	)
}

func (p EventPatch) empty() bool {
	return p.Kind == nil && p.Title == nil && p.StartAt == nil &&
		p.EndAt == nil && p.ParentID == nil && p.CoverMediaID == nil
}

const eventColumns = `id, type, title, start_at, end_at, parent_id, cover_media_id, created_at, updated_at`

func scanEvent(s store.Scanner) (models.Event, error) {
	var (
		e                           models.Event
		title, end, parent, cover   sql.NullString
		start, createdAt, updatedAt string
	)
	if err := s.Scan(&e.ID, &e.Kind, &title, &start, &end, &parent, &cover, &createdAt, &updatedAt); err != nil {
		return models.Event{}, err
	}
	e.Title, e.ParentID, e.CoverMediaID = title.String, parent.String, cover.String

	var err error
	if e.StartAt, err = store.ParseStored(start); err != nil {
		return models.Event{}, err
	}
	if e.EndAt, err = store.ParseStoredNull(end); err != nil {
		return models.Event{}, err
	}
	if e.CreatedAt, err = store.ParseStored(createdAt); err != nil {
		return models.Event{}, err
	}
	if e.UpdatedAt, err = store.ParseStored(updatedAt); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

func getEvent(ctx context.Context, q store.Querier, id string) (*models.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent returns one event.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	e, err := getEvent(ctx, s.db.SQL(), id)
	if err != nil {
		return nil, fmt.Errorf("entity: get event: %w", err)
	}
	return e, nil
}

// CreateEvent validates and persists a new event and returns its identifier.
func (s *Store) CreateEvent(ctx context.Context, in NewEvent) (string, error) {
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("entity: create event: %w", apperr.Validation(err))
	}
	start, _ := models.ParseInstant(in.StartAt)
	end, err := optionalInstant(in.EndAt)
	if err != nil {
		return "", fmt.Errorf("entity: create event: %w", err)
	}
	if err := checkTimeRange(start, end); err != nil {
		return "", fmt.Errorf("entity: create event: %w", err)
	}

	id := s.newID()
	now := store.Instant(s.now())
	err = s.db.Tx(ctx, "create event", func(ctx context.Context, tx *sql.Tx) error {
		if err := checkParent(ctx, tx, in.Kind, in.ParentID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (`+eventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, string(in.Kind), store.NullString(in.Title), store.Instant(start), store.NullInstant(end),
			store.NullString(in.ParentID), store.NullString(in.CoverMediaID), now, now)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("entity: create event: %w", err)
	}

	s.logger.Debug("event created", slog.String("id", id), slog.String("type", string(in.Kind)))
	return id, nil
}

// UpdateEvent applies patch to event id, re-checking the hierarchy and time
// invariants against the merged state, and refreshes updated_at.
func (s *Store) UpdateEvent(ctx context.Context, id string, patch EventPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("entity: update event: %w", apperr.Validation(err))
	}

	err := s.db.Tx(ctx, "update event", func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getEvent(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.empty() {
			return nil
		}

		next := *cur
		if patch.Kind != nil {
			next.Kind = *patch.Kind
		}
		if patch.Title != nil {
			next.Title = *patch.Title
		}
		if patch.StartAt != nil {
			next.StartAt, _ = models.ParseInstant(*patch.StartAt)
		}
		if patch.EndAt != nil {
			if next.EndAt, err = optionalInstant(*patch.EndAt); err != nil {
				return err
			}
		}
		if patch.ParentID != nil {
			next.ParentID = *patch.ParentID
		}
		if patch.CoverMediaID != nil {
			next.CoverMediaID = *patch.CoverMediaID
		}

		if err := checkTimeRange(next.StartAt, next.EndAt); err != nil {
			return err
		}
		if next.Kind != cur.Kind || next.ParentID != cur.ParentID {
			if err := checkParent(ctx, tx, next.Kind, next.ParentID); err != nil {
				return err
			}
		}
		if next.ParentID != cur.ParentID && next.ParentID != "" {
			if err := checkNoCycle(ctx, tx, id, next.ParentID); err != nil {
				return err
			}
		}
		if next.Kind != cur.Kind {
			if err := checkChildrenBelow(ctx, tx, id, next.Kind); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE events
			SET type = ?, title = ?, start_at = ?, end_at = ?, parent_id = ?, cover_media_id = ?, updated_at = ?
			WHERE id = ?`,
			string(next.Kind), store.NullString(next.Title), store.Instant(next.StartAt), store.NullInstant(next.EndAt),
			store.NullString(next.ParentID), store.NullString(next.CoverMediaID), store.Instant(s.now()), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("entity: update event: %w", err)
	}
	return nil
}

// DeleteEvent removes event id. Without cascade it fails with ErrConflict
// while child events or items still reference it. With cascade it removes
// every descendant event, their items and those items' placements in one
// transaction.
func (s *Store) DeleteEvent(ctx context.Context, id string, cascade bool) error {
	var stats cascadeStats
	err := s.db.Tx(ctx, "delete event", func(ctx context.Context, tx *sql.Tx) error {
		stats = cascadeStats{}
		if err := checkEventExists(ctx, tx, id); err != nil {
			return err
		}
		if !cascade {
			var children, items int
			if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM events WHERE parent_id = ?`, id).Scan(&children); err != nil {
				return err
			}
			if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM items WHERE event_id = ?`, id).Scan(&items); err != nil {
				return err
			}
			if children > 0 || items > 0 {
				return fmt.Errorf("%w: event %q is referenced by %d child events and %d items",
					apperr.ErrConflict, id, children, items)
			}
		}

		order, err := descendantsPostOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, eventID := range order {
			if err := s.deleteEventRows(ctx, tx, eventID, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("entity: delete event: %w", err)
	}

	s.logger.Info("event deleted",
		slog.String("id", id),
		slog.Bool("cascade", cascade),
		slog.Int("events", stats.events),
		slog.Int("items", stats.items),
		slog.Int64("placements", stats.placements))
	return nil
}

type cascadeStats struct {
	events     int
	items      int
	placements int64
}

// deleteEventRows removes one event whose children are already gone.
func (s *Store) deleteEventRows(ctx context.Context, tx *sql.Tx, eventID string, stats *cascadeStats) error {
	itemIDs, err := store.Collect(store.Seq(ctx, tx, scanString, `SELECT id FROM items WHERE event_id = ?`, eventID))
	if err != nil {
		return err
	}
	if len(itemIDs) > 0 {
		n, err := s.purger.PurgeItemsTx(ctx, tx, itemIDs)
		if err != nil {
			return err
		}
		stats.placements += n
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE event_id = ?`, eventID); err != nil {
			return err
		}
		stats.items += len(itemIDs)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID); err != nil {
		return err
	}
	stats.events++
	return nil
}

// descendantsPostOrder lists id and all its descendants, deepest first, so
// that every child is deleted before its parent.
func descendantsPostOrder(ctx context.Context, q store.Querier, id string) ([]string, error) {
	var (
		order   []string
		visited = map[string]bool{}
		walk    func(id string, depth int) error
	)
	walk = func(id string, depth int) error {
		if visited[id] {
			return fmt.Errorf("%w: event %q reached twice while collecting descendants", apperr.ErrCycleDetected, id)
		}
		if depth > maxAncestorWalk {
			return fmt.Errorf("%w: hierarchy below event deeper than %d", apperr.ErrCycleDetected, maxAncestorWalk)
		}
		visited[id] = true

		children, err := store.Collect(store.Seq(ctx, q, scanString,
			`SELECT id FROM events WHERE parent_id = ? ORDER BY start_at, id`, id))
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		order = append(order, id)
		return nil
	}
	if err := walk(id, 0); err != nil {
		return nil, err
	}
	return order, nil
}

func scanString(s store.Scanner) (string, error) {
	var v string
	err := s.Scan(&v)
	return v, err
}

// ListEventsByTimeRange yields events whose start_at lies in [start, end),
// earliest first. The sequence is lazy and may be ranged over repeatedly.
func (s *Store) ListEventsByTimeRange(ctx context.Context, start, end time.Time) iter.Seq2[models.Event, error] {
	if end.Before(start) {
		return failed[models.Event](fmt.Errorf("entity: list events: %w: range end precedes start", apperr.ErrValidation))
	}
	return store.Seq(ctx, s.db.SQL(), scanEvent, `
		SELECT `+eventColumns+` FROM events
		WHERE start_at >= ? AND start_at < ?
		ORDER BY start_at, id`,
		store.Instant(start), store.Instant(end))
}

// ListRoots yields every parentless event, earliest first.
func (s *Store) ListRoots(ctx context.Context) iter.Seq2[models.Event, error] {
	return store.Seq(ctx, s.db.SQL(), scanEvent, `
		SELECT `+eventColumns+` FROM events
		WHERE parent_id IS NULL
		ORDER BY start_at, id`)
}

// ListChildren yields the direct children of parentID, earliest first.
func (s *Store) ListChildren(ctx context.Context, parentID string) iter.Seq2[models.Event, error] {
	return requireEventSeq(ctx, s.db.SQL(), parentID, store.Seq(ctx, s.db.SQL(), scanEvent, `
		SELECT `+eventColumns+` FROM events
		WHERE parent_id = ?
		ORDER BY start_at, id`, parentID))
}

// requireEventSeq prefixes seq with an existence check on eventID.
func requireEventSeq[T any](ctx context.Context, q store.Querier, eventID string, seq iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := checkEventExists(ctx, q, eventID); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		seq(yield)
	}
}

func failed[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
