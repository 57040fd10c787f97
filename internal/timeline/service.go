// Package timeline is the application service over the lifeline store. It
// composes the entity store, the canvas index and the query layer, returns
// full objects after writes, and announces every committed change.
package timeline

import (
	"context"
	"time"

	"github.com/starford/lifeline/internal/canvas"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/query"
	"github.com/starford/lifeline/internal/store"
)

// Change kinds published to the Notifier.
const (
	EventCreated  = "event.created"
	EventUpdated  = "event.updated"
	EventDeleted  = "event.deleted"
	ItemCreated   = "item.created"
	ItemUpdated   = "item.updated"
	ItemDeleted   = "item.deleted"
	CanvasUpdated = "canvas.updated"
)

// Notifier receives a message after each committed change.
type Notifier interface {
	PublishChange(kind, id string)
}

type nopNotifier struct{}

func (nopNotifier) PublishChange(string, string) {}

// Service is safe for concurrent use.
type Service struct {
	entities *entity.Store
	canvas   *canvas.Index
	query    *query.Layer
	notify   Notifier
}

// New creates a service. A nil notifier discards notifications.
func New(entities *entity.Store, idx *canvas.Index, q *query.Layer, notify Notifier) *Service {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Service{entities: entities, canvas: idx, query: q, notify: notify}
}

// Events

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.entities.GetEvent(ctx, id)
}

// ListRoots returns every parentless event.
func (s *Service) ListRoots(ctx context.Context) ([]models.Event, error) {
	return nonNil(store.Collect(s.entities.ListRoots(ctx)))
}

// ListRange returns the events starting in [from, to).
func (s *Service) ListRange(ctx context.Context, from, to time.Time) ([]models.Event, error) {
	return nonNil(store.Collect(s.entities.ListEventsByTimeRange(ctx, from, to)))
}

// ListChildren returns the direct children of an event.
func (s *Service) ListChildren(ctx context.Context, id string) ([]models.Event, error) {
	return nonNil(store.Collect(s.entities.ListChildren(ctx, id)))
}

// Ancestors returns the parent chain of an event, root first.
func (s *Service) Ancestors(ctx context.Context, id string) ([]models.Event, error) {
	return nonNil(s.query.Ancestors(ctx, id))
}

// Subtree returns an event with its items and nested children.
func (s *Service) Subtree(ctx context.Context, id string) (*query.EventNode, error) {
	return s.query.Subtree(ctx, id)
}

// CreateEvent stores a new event and returns it.
func (s *Service) CreateEvent(ctx context.Context, in entity.NewEvent) (*models.Event, error) {
	id, err := s.entities.CreateEvent(ctx, in)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChange(EventCreated, id)
	return s.entities.GetEvent(ctx, id)
}

// UpdateEvent applies patch and returns the updated event.
func (s *Service) UpdateEvent(ctx context.Context, id string, patch entity.EventPatch) (*models.Event, error) {
	if err := s.entities.UpdateEvent(ctx, id, patch); err != nil {
		return nil, err
	}
	s.notify.PublishChange(EventUpdated, id)
	return s.entities.GetEvent(ctx, id)
}

// DeleteEvent removes an event, and with cascade its whole subtree.
func (s *Service) DeleteEvent(ctx context.Context, id string, cascade bool) error {
	if err := s.entities.DeleteEvent(ctx, id, cascade); err != nil {
		return err
	}
	s.notify.PublishChange(EventDeleted, id)
	return nil
}

// Items

// GetItem returns one item.
func (s *Service) GetItem(ctx context.Context, id string) (*models.Item, error) {
	return s.entities.GetItem(ctx, id)
}

// ListItems returns the items of an event in timeline order.
func (s *Service) ListItems(ctx context.Context, eventID string) ([]models.Item, error) {
	return nonNil(store.Collect(s.entities.ListItems(ctx, eventID)))
}

// CreateItem stores a new item and returns it.
func (s *Service) CreateItem(ctx context.Context, in entity.NewItem) (*models.Item, error) {
	id, err := s.entities.CreateItem(ctx, in)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChange(ItemCreated, id)
	return s.entities.GetItem(ctx, id)
}

// UpdateItem applies patch and returns the updated item.
func (s *Service) UpdateItem(ctx context.Context, id string, patch entity.ItemPatch) (*models.Item, error) {
	if err := s.entities.UpdateItem(ctx, id, patch); err != nil {
		return nil, err
	}
	s.notify.PublishChange(ItemUpdated, id)
	return s.entities.GetItem(ctx, id)
}

// DeleteItem removes an item and its placement.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.entities.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.notify.PublishChange(ItemDeleted, id)
	return nil
}

// Canvas. Notifications carry the event id.

// Canvas returns the placed and unplaced items of an event.
func (s *Service) Canvas(ctx context.Context, eventID string) (*query.CanvasView, error) {
	return s.query.Canvas(ctx, eventID)
}

// Viewport returns the placed items inside box.
func (s *Service) Viewport(ctx context.Context, eventID string, box models.BBox) ([]query.PlacedItem, error) {
	return s.query.Viewport(ctx, eventID, box)
}

// Placement is the body of a place request. Nil fields take their defaults.
type Placement struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Scale    *float64 `json:"scale,omitempty"`
	Rotation *float64 `json:"rotation,omitempty"`
	ZIndex   *int     `json:"z_index,omitempty"`
}

// PlaceItem places or re-places an item on its event's canvas.
func (s *Service) PlaceItem(ctx context.Context, eventID, itemID string, p Placement) (*models.CanvasItem, error) {
	var opts []canvas.PlaceOption
	if p.Scale != nil {
		opts = append(opts, canvas.WithScale(*p.Scale))
	}
	if p.Rotation != nil {
		opts = append(opts, canvas.WithRotation(*p.Rotation))
	}
	if p.ZIndex != nil {
		opts = append(opts, canvas.WithZIndex(*p.ZIndex))
	}
	c, err := s.canvas.PlaceItem(ctx, eventID, itemID, p.X, p.Y, opts...)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChange(CanvasUpdated, eventID)
	return c, nil
}

// PlacementPatch is the body of a partial placement update.
type PlacementPatch = canvas.Patch

// UpdatePlacement applies the non-nil fields of patch in one transaction.
func (s *Service) UpdatePlacement(ctx context.Context, eventID, itemID string, patch PlacementPatch) (*models.CanvasItem, error) {
	c, err := s.canvas.UpdatePlacement(ctx, eventID, itemID, patch)
	if err != nil {
		return nil, err
	}
	s.notify.PublishChange(CanvasUpdated, eventID)
	return c, nil
}

// BringToFront raises a placement above the rest and returns its z-index.
func (s *Service) BringToFront(ctx context.Context, eventID, itemID string) (int, error) {
	z, err := s.canvas.BringToFront(ctx, eventID, itemID)
	if err != nil {
		return 0, err
	}
	s.notify.PublishChange(CanvasUpdated, eventID)
	return z, nil
}

// RemovePlacement takes an item off the canvas. Missing placements are ignored.
func (s *Service) RemovePlacement(ctx context.Context, eventID, itemID string) error {
	if err := s.canvas.RemovePlacement(ctx, eventID, itemID); err != nil {
		return err
	}
	s.notify.PublishChange(CanvasUpdated, eventID)
	return nil
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = []T{}
	}
	return v, nil
}
