package api

import (
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/query"
	"github.com/starford/lifeline/internal/timeline"
)

// CreateEventRequest is the request body for creating an event.
type CreateEventRequest = entity.NewEvent

// UpdateEventRequest is the request body for patching an event. A field set
// to "" clears it.
type UpdateEventRequest = entity.EventPatch

// CreateItemRequest is the request body for creating an item under the event
// named in the path.
type CreateItemRequest struct {
	Type       models.ItemType  `json:"item_type" example:"text" validate:"required"`
	Content    string           `json:"content" example:"First day at the lake" validate:"required"`
	Caption    string           `json:"caption,omitempty"`
	HappenedAt string           `json:"happened_at,omitempty" example:"2020-07-04T10:00:00Z"`
	Point      *models.GeoPoint `json:"point,omitempty"`
	PlaceLabel string           `json:"place_label,omitempty" example:"Annecy"`
}

// UpdateItemRequest is the request body for patching an item.
type UpdateItemRequest = entity.ItemPatch

// PlaceItemRequest is the request body for placing an item on a canvas.
type PlaceItemRequest = timeline.Placement

// UpdatePlacementRequest is the request body for a partial placement update.
type UpdatePlacementRequest = timeline.PlacementPatch

// EventListResponse wraps event listings.
type EventListResponse struct {
	Events []models.Event `json:"events" validate:"required"`
}

// ItemListResponse wraps item listings.
type ItemListResponse struct {
	Items []models.Item `json:"items" validate:"required"`
}

// ViewportResponse wraps the placed items inside a viewport.
type ViewportResponse struct {
	Placed []query.PlacedItem `json:"placed" validate:"required"`
}

// FrontResponse reports the z-index assigned by bring-to-front.
type FrontResponse struct {
	ZIndex int `json:"z_index" example:"7" validate:"required"`
}
