package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ItemType is the content kind of an Item.
type ItemType string

const (
	ItemText  ItemType = "text"
	ItemPhoto ItemType = "photo"
	ItemVideo ItemType = "video"
	ItemLink  ItemType = "link"
)

// ItemTypes lists every known content kind.
var ItemTypes = []ItemType{ItemText, ItemPhoto, ItemVideo, ItemLink}

// Validate implements validation.Validatable.
func (t ItemType) Validate() error {
	allowed := make([]any, len(ItemTypes))
	for i, it := range ItemTypes {
		allowed[i] = string(it)
	}
	return validation.Validate(string(t), validation.Required, validation.In(allowed...))
}

// GeoPoint is a WGS84 latitude/longitude pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate implements validation.Validatable.
func (p GeoPoint) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&p.Lng, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// Item is a content block attached to an Event. Content holds the text for
// text items and an opaque media reference or URL otherwise.
type Item struct {
	ID         string     `json:"id"`
	EventID    string     `json:"event_id"`
	Type       ItemType   `json:"item_type"`
	Content    string     `json:"content"`
	Caption    string     `json:"caption,omitempty"`
	HappenedAt *time.Time `json:"happened_at,omitempty"`
	Point      *GeoPoint  `json:"point,omitempty"`
	PlaceLabel string     `json:"place_label,omitempty"`
}
