// Package canvas keeps the free-form layout of items on their event's canvas.
package canvas

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
)

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) { i.logger = l }
}

// Index owns the canvas_items table.
type Index struct {
	db     *store.DB
	logger *slog.Logger
}

// New creates a canvas index on db.
func New(db *store.DB, opts ...Option) *Index {
	i := &Index{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// PlaceOption adjusts a placement beyond its position.
type PlaceOption func(*models.CanvasItem)

// WithScale sets the scale factor. Defaults to 1.
func WithScale(v float64) PlaceOption { return func(c *models.CanvasItem) { c.Scale = v } }

// WithRotation sets the rotation in degrees.
func WithRotation(v float64) PlaceOption { return func(c *models.CanvasItem) { c.Rotation = v } }

// WithZIndex sets the stacking order.
func WithZIndex(v int) PlaceOption { return func(c *models.CanvasItem) { c.ZIndex = v } }

const placementColumns = `event_id, item_id, x, y, scale, rotation, z_index`

func scanPlacement(s store.Scanner) (models.CanvasItem, error) {
	var c models.CanvasItem
	err := s.Scan(&c.EventID, &c.ItemID, &c.X, &c.Y, &c.Scale, &c.Rotation, &c.ZIndex)
	return c, err
}

// PlaceItem upserts the placement of itemID on the canvas of eventID. The
// item must belong to that event.
func (i *Index) PlaceItem(ctx context.Context, eventID, itemID string, x, y float64, opts ...PlaceOption) (*models.CanvasItem, error) {
	c := models.CanvasItem{EventID: eventID, ItemID: itemID, X: x, Y: y, Scale: 1}
	for _, opt := range opts {
		opt(&c)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("canvas: place item: %w", apperr.Validation(err))
	}

	err := i.db.Tx(ctx, "place item", func(ctx context.Context, tx *sql.Tx) error {
		if err := checkOwnership(ctx, tx, eventID, itemID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO canvas_items (`+placementColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (event_id, item_id) DO UPDATE SET
				x = excluded.x, y = excluded.y, scale = excluded.scale,
				rotation = excluded.rotation, z_index = excluded.z_index`,
			c.EventID, c.ItemID, c.X, c.Y, c.Scale, c.Rotation, c.ZIndex)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("canvas: place item: %w", err)
	}
	return &c, nil
}

// checkOwnership: the item exists and belongs to eventID.
func checkOwnership(ctx context.Context, q store.Querier, eventID, itemID string) error {
	owner, err := entity.ItemEventID(ctx, q, itemID)
	if err != nil {
		return err
	}
	if owner != eventID {
		return fmt.Errorf("%w: item %q belongs to event %q, not %q", apperr.ErrConflict, itemID, owner, eventID)
	}
	return nil
}

// MoveItem changes the position of an existing placement.
func (i *Index) MoveItem(ctx context.Context, eventID, itemID string, x, y float64) (*models.CanvasItem, error) {
	return i.modify(ctx, "move item", eventID, itemID, func(c *models.CanvasItem) {
		c.X, c.Y = x, y
	})
}

// TransformItem changes scale and/or rotation of an existing placement. Nil
// arguments are left unchanged.
func (i *Index) TransformItem(ctx context.Context, eventID, itemID string, scale, rotation *float64) (*models.CanvasItem, error) {
	return i.modify(ctx, "transform item", eventID, itemID, func(c *models.CanvasItem) {
		if scale != nil {
			c.Scale = *scale
		}
		if rotation != nil {
			c.Rotation = *rotation
		}
	})
}

// RestackItem sets the z-index of an existing placement.
func (i *Index) RestackItem(ctx context.Context, eventID, itemID string, z int) (*models.CanvasItem, error) {
	return i.modify(ctx, "restack item", eventID, itemID, func(c *models.CanvasItem) {
		c.ZIndex = z
	})
}

// Patch is a partial placement update. Nil fields are left unchanged.
type Patch struct {
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"z_index,omitempty"`
}

// UpdatePlacement merges every non-nil field of p into the placement and
// writes it in a single transaction. Nothing is stored if the merged
// placement is invalid.
func (i *Index) UpdatePlacement(ctx context.Context, eventID, itemID string, p Patch) (*models.CanvasItem, error) {
	return i.modify(ctx, "update placement", eventID, itemID, func(c *models.CanvasItem) {
		setIf(&c.X, p.X)
		setIf(&c.Y, p.Y)
		setIf(&c.Scale, p.Scale)
		setIf(&c.Rotation, p.Rotation)
		setIf(&c.ZIndex, p.ZIndex)
	})
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// BringToFront raises a placement above every other placement of its event
// and returns the new z-index.
func (i *Index) BringToFront(ctx context.Context, eventID, itemID string) (int, error) {
	var z int
	err := i.db.Tx(ctx, "bring to front", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := getPlacement(ctx, tx, eventID, itemID); err != nil {
			return err
		}
		var top sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			`SELECT MAX(z_index) FROM canvas_items WHERE event_id = ? AND item_id <> ?`,
			eventID, itemID).Scan(&top); err != nil {
			return err
		}
		z = 0
		if top.Valid {
			z = int(top.Int64) + 1
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE canvas_items SET z_index = ? WHERE event_id = ? AND item_id = ?`, z, eventID, itemID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("canvas: bring to front: %w", err)
	}
	return z, nil
}

func (i *Index) modify(ctx context.Context, name, eventID, itemID string, change func(*models.CanvasItem)) (*models.CanvasItem, error) {
	var out models.CanvasItem
	err := i.db.Tx(ctx, name, func(ctx context.Context, tx *sql.Tx) error {
		c, err := getPlacement(ctx, tx, eventID, itemID)
		if err != nil {
			return err
		}
		change(c)
		if err := c.Validate(); err != nil {
			return apperr.Validation(err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE canvas_items SET x = ?, y = ?, scale = ?, rotation = ?, z_index = ?
			WHERE event_id = ? AND item_id = ?`,
			c.X, c.Y, c.Scale, c.Rotation, c.ZIndex, eventID, itemID)
		out = *c
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("canvas: %s: %w", name, err)
	}
	return &out, nil
}

func getPlacement(ctx context.Context, q store.Querier, eventID, itemID string) (*models.CanvasItem, error) {
	c, err := scanPlacement(q.QueryRowContext(ctx,
		`SELECT `+placementColumns+` FROM canvas_items WHERE event_id = ? AND item_id = ?`, eventID, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %q is not placed on event %q", apperr.ErrNotFound, itemID, eventID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetPlacement returns the placement of itemID on eventID's canvas.
func (i *Index) GetPlacement(ctx context.Context, eventID, itemID string) (*models.CanvasItem, error) {
	c, err := getPlacement(ctx, i.db.SQL(), eventID, itemID)
	if err != nil {
		return nil, fmt.Errorf("canvas: get placement: %w", err)
	}
	return c, nil
}

// RemovePlacement deletes a placement. Removing an absent placement is not an
// error.
func (i *Index) RemovePlacement(ctx context.Context, eventID, itemID string) error {
	err := i.db.Tx(ctx, "remove placement", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM canvas_items WHERE event_id = ? AND item_id = ?`, eventID, itemID)
		return err
	})
	if err != nil {
		return fmt.Errorf("canvas: remove placement: %w", err)
	}
	return nil
}

// ListCanvas yields every placement of eventID, back to front.
func (i *Index) ListCanvas(ctx context.Context, eventID string) iter.Seq2[models.CanvasItem, error] {
	return requireEvent(ctx, i.db.SQL(), eventID, store.Seq(ctx, i.db.SQL(), scanPlacement, `
		SELECT `+placementColumns+` FROM canvas_items
		WHERE event_id = ?
		ORDER BY z_index, item_id`, eventID))
}

// ListInViewport yields the placements of eventID whose position lies inside
// box (edges included), back to front.
func (i *Index) ListInViewport(ctx context.Context, eventID string, box models.BBox) iter.Seq2[models.CanvasItem, error] {
	if err := box.Validate(); err != nil {
		return func(yield func(models.CanvasItem, error) bool) {
			yield(models.CanvasItem{}, fmt.Errorf("canvas: viewport: %w", apperr.Validation(err)))
		}
	}
	return requireEvent(ctx, i.db.SQL(), eventID, store.Seq(ctx, i.db.SQL(), scanPlacement, `
		SELECT `+placementColumns+` FROM canvas_items
		WHERE event_id = ? AND x BETWEEN ? AND ? AND y BETWEEN ? AND ?
		ORDER BY z_index, item_id`,
		eventID, box.MinX, box.MaxX, box.MinY, box.MaxY))
}

// PurgeItemsTx deletes every placement of the given items inside tx. It
// implements entity.PlacementPurger.
func (i *Index) PurgeItemsTx(ctx context.Context, tx *sql.Tx, itemIDs []string) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	args := make([]any, len(itemIDs))
	for n, id := range itemIDs {
		args[n] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	res, err := tx.ExecContext(ctx, `DELETE FROM canvas_items WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("canvas: purge placements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		i.logger.Debug("placements purged", slog.Int64("count", n))
	}
	return n, nil
}

func requireEvent(ctx context.Context, q store.Querier, eventID string, seq iter.Seq2[models.CanvasItem, error]) iter.Seq2[models.CanvasItem, error] {
	return func(yield func(models.CanvasItem, error) bool) {
		var exists bool
		err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = ?)`, eventID).Scan(&exists)
		if err == nil && !exists {
			err = fmt.Errorf("%w: event %q", apperr.ErrNotFound, eventID)
		}
		if err != nil {
			yield(models.CanvasItem{}, fmt.Errorf("canvas: %w", err))
			return
		}
		seq(yield)
	}
}

var _ entity.PlacementPurger = (*Index)(nil)
