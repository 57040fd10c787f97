package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
)

// maxAncestorWalk bounds every parent_id walk. Legitimate chains are at most
// four events long.
const maxAncestorWalk = 32

// checkTimeRange: end_at, when set, must not precede start_at.
func checkTimeRange(start time.Time, end *time.Time) error {
	if end != nil && end.Before(start) {
		return fmt.Errorf("%w: end_at %s precedes start_at %s",
			apperr.ErrValidation, models.FormatInstant(*end), models.FormatInstant(start))
	}
	return nil
}

// checkParent: a year has no parent; every other kind has an existing parent
// of a strictly higher kind.
func checkParent(ctx context.Context, q store.Querier, kind models.EventKind, parentID string) error {
	if kind == models.KindYear {
		if parentID != "" {
			return fmt.Errorf("%w: a year cannot have a parent", apperr.ErrInvalidHierarchy)
		}
		return nil
	}
	if parentID == "" {
		return fmt.Errorf("%w: a %s requires a parent", apperr.ErrInvalidHierarchy, kind)
	}
	parentKind, err := eventKind(ctx, q, parentID)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	if !parentKind.Above(kind) {
		return fmt.Errorf("%w: a %s cannot be placed under a %s", apperr.ErrInvalidHierarchy, kind, parentKind)
	}
	return nil
}

// checkChildrenBelow: every existing child of id must stay strictly below kind.
func checkChildrenBelow(ctx context.Context, q store.Querier, id string, kind models.EventKind) error {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT type FROM events WHERE parent_id = ?`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var child models.EventKind
		if err := rows.Scan(&child); err != nil {
			return err
		}
		if !kind.Above(child) {
			return fmt.Errorf("%w: event has %s children and cannot become a %s", apperr.ErrInvalidHierarchy, child, kind)
		}
	}
	return rows.Err()
}

// checkNoCycle walks up from parentID and rejects the edge id -> parentID if
// it would make id its own ancestor.
func checkNoCycle(ctx context.Context, q store.Querier, id, parentID string) error {
	cur := parentID
	for steps := 0; cur != ""; steps++ {
		if cur == id {
			return fmt.Errorf("%w: event would become its own ancestor", apperr.ErrInvalidHierarchy)
		}
		if steps >= maxAncestorWalk {
			return fmt.Errorf("%w: ancestor chain of %q exceeds %d steps", apperr.ErrCycleDetected, parentID, maxAncestorWalk)
		}
		var next sql.NullString
		err := q.QueryRowContext(ctx, `SELECT parent_id FROM events WHERE id = ?`, cur).Scan(&next)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: event %q", apperr.ErrNotFound, cur)
			}
			return err
		}
		cur = next.String
	}
	return nil
}

// checkEventExists: the referenced event row must exist.
func checkEventExists(ctx context.Context, q store.Querier, id string) error {
	_, err := eventKind(ctx, q, id)
	return err
}

func eventKind(ctx context.Context, q store.Querier, id string) (models.EventKind, error) {
	var kind models.EventKind
	err := q.QueryRowContext(ctx, `SELECT type FROM events WHERE id = ?`, id).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: event %q", apperr.ErrNotFound, id)
	}
	return kind, err
}

// ItemEventID returns the owning event of an item, or ErrNotFound. The canvas
// index uses it to validate placements against the entity store.
func ItemEventID(ctx context.Context, q store.Querier, itemID string) (string, error) {
	var eventID string
	err := q.QueryRowContext(ctx, `SELECT event_id FROM items WHERE id = ?`, itemID).Scan(&eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: item %q", apperr.ErrNotFound, itemID)
	}
	return eventID, err
}

func optionalInstant(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := models.ParseInstant(s)
	if err != nil {
		return nil, apperr.Validation(err)
	}
	return &t, nil
}
