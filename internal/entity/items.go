package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
)

// NewItem is the input of CreateItem.
type NewItem struct {
	EventID    string           `json:"event_id"`
	Type       models.ItemType  `json:"item_type"`
	Content    string           `json:"content"`
	Caption    string           `json:"caption,omitempty"`
	HappenedAt string           `json:"happened_at,omitempty"`
	Point      *models.GeoPoint `json:"point,omitempty"`
	PlaceLabel string           `json:"place_label,omitempty"`
}

// Validate implements validation.Validatable.
func (n NewItem) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.EventID, validation.Required),
		validation.Field(&n.Type),
		validation.Field(&n.Content, validation.Required),
		validation.Field(&n.HappenedAt, models.IsInstant),
		validation.Field(&n.Point),
	)
}

// ItemPatch lists the fields UpdateItem changes. Setting EventID moves the
// item to another event and drops its old placement.
type ItemPatch struct {
	EventID    *string          `json:"event_id,omitempty"`
	Type       *models.ItemType `json:"item_type,omitempty"`
	Content    *string          `json:"content,omitempty"`
	Caption    *string          `json:"caption,omitempty"`
	HappenedAt *string          `json:"happened_at,omitempty"`
	Point      *models.GeoPoint `json:"point,omitempty"`
	ClearPoint bool             `json:"clear_point,omitempty"`
	PlaceLabel *string          `json:"place_label,omitempty"`
}

// Validate implements validation.Validatable.
func (p ItemPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.EventID, validation.NilOrNotEmpty),
		validation.Field(&p.Type),
		validation.Field(&p.Content, validation.NilOrNotEmpty),
		validation.Field(&p.HappenedAt, models.IsInstant),
		validation.Field(&p.Point),
		validation.Field(&p.ClearPoint, validation.When(p.Point != nil, validation.Empty.Error("cannot be combined with point"))),
	)
}

const itemColumns = `id, event_id, item_type, content, caption, happened_at, place_lat, place_lng, place_label`

func scanItem(s store.Scanner) (models.Item, error) {
	var (
		it                           models.Item
		caption, happened, placeName sql.NullString
		lat, lng                     sql.NullFloat64
	)
	if err := s.Scan(&it.ID, &it.EventID, &it.Type, &it.Content, &caption, &happened, &lat, &lng, &placeName); err != nil {
		return models.Item{}, err
	}
	it.Caption, it.PlaceLabel = caption.String, placeName.String
	if lat.Valid && lng.Valid {
		it.Point = &models.GeoPoint{Lat: lat.Float64, Lng: lng.Float64}
	}
	var err error
	if it.HappenedAt, err = store.ParseStoredNull(happened); err != nil {
		return models.Item{}, err
	}
	return it, nil
}

func pointArgs(p *models.GeoPoint) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lng, Valid: true}
}

func getItem(ctx context.Context, q store.Querier, id string) (*models.Item, error) {
	it, err := scanItem(q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: item %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem returns one item.
func (s *Store) GetItem(ctx context.Context, id string) (*models.Item, error) {
	it, err := getItem(ctx, s.db.SQL(), id)
	if err != nil {
		return nil, fmt.Errorf("entity: get item: %w", err)
	}
	return it, nil
}

// CreateItem attaches a new item to an existing event.
func (s *Store) CreateItem(ctx context.Context, in NewItem) (string, error) {
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("entity: create item: %w", apperr.Validation(err))
	}
	happened, err := optionalInstant(in.HappenedAt)
	if err != nil {
		return "", fmt.Errorf("entity: create item: %w", err)
	}

	id := s.newID()
	lat, lng := pointArgs(in.Point)
	err = s.db.Tx(ctx, "create item", func(ctx context.Context, tx *sql.Tx) error {
		if err := checkEventExists(ctx, tx, in.EventID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.EventID, string(in.Type), in.Content, store.NullString(in.Caption),
			store.NullInstant(happened), lat, lng, store.NullString(in.PlaceLabel))
		return err
	})
	if err != nil {
		return "", fmt.Errorf("entity: create item: %w", err)
	}

	s.logger.Debug("item created", slog.String("id", id), slog.String("event_id", in.EventID))
	return id, nil
}

// UpdateItem applies patch to item id.
func (s *Store) UpdateItem(ctx context.Context, id string, patch ItemPatch) error {
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("entity: update item: %w", apperr.Validation(err))
	}

	err := s.db.Tx(ctx, "update item", func(ctx context.Context, tx *sql.Tx) error {
		cur, err := getItem(ctx, tx, id)
		if err != nil {
			return err
		}

		next := *cur
		if patch.EventID != nil {
			next.EventID = *patch.EventID
		}
		if patch.Type != nil {
			next.Type = *patch.Type
		}
		if patch.Content != nil {
			next.Content = *patch.Content
		}
		if patch.Caption != nil {
			next.Caption = *patch.Caption
		}
		if patch.HappenedAt != nil {
			if next.HappenedAt, err = optionalInstant(*patch.HappenedAt); err != nil {
				return err
			}
		}
		switch {
		case patch.Point != nil:
			p := *patch.Point
			next.Point = &p
		case patch.ClearPoint:
			next.Point = nil
		}
		if patch.PlaceLabel != nil {
			next.PlaceLabel = *patch.PlaceLabel
		}

		if next.EventID != cur.EventID {
			if err := checkEventExists(ctx, tx, next.EventID); err != nil {
				return err
			}
			if _, err := s.purger.PurgeItemsTx(ctx, tx, []string{id}); err != nil {
				return err
			}
		}

		lat, lng := pointArgs(next.Point)
		_, err = tx.ExecContext(ctx, `
			UPDATE items
			SET event_id = ?, item_type = ?, content = ?, caption = ?, happened_at = ?,
			    place_lat = ?, place_lng = ?, place_label = ?
			WHERE id = ?`,
			next.EventID, string(next.Type), next.Content, store.NullString(next.Caption),
			store.NullInstant(next.HappenedAt), lat, lng, store.NullString(next.PlaceLabel), id)
		return err
	})
	if err != nil {
		return fmt.Errorf("entity: update item: %w", err)
	}
	return nil
}

// DeleteItem removes item id together with its placement.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	err := s.db.Tx(ctx, "delete item", func(ctx context.Context, tx *sql.Tx) error {
		if _, err := ItemEventID(ctx, tx, id); err != nil {
			return err
		}
		if _, err := s.purger.PurgeItemsTx(ctx, tx, []string{id}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("entity: delete item: %w", err)
	}
	s.logger.Debug("item deleted", slog.String("id", id))
	return nil
}

// ListItems yields the items of eventID. Items with happened_at come first in
// chronological order, then undated items in insertion order.
func (s *Store) ListItems(ctx context.Context, eventID string) iter.Seq2[models.Item, error] {
	return requireEventSeq(ctx, s.db.SQL(), eventID, store.Seq(ctx, s.db.SQL(), scanItem, `
		SELECT `+itemColumns+` FROM items
		WHERE event_id = ?
		ORDER BY happened_at IS NULL, happened_at, rowid`, eventID))
}
