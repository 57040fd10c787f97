// Package models defines the domain types of the lifeline store and the
// boundary validation applied before anything reaches storage.
package models

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EventKind is the hierarchy level of an Event.
type EventKind string

// Hierarchy levels, highest first. KindItem is a timeline marker and is not
// related to the Item entity.
const (
	KindYear   EventKind = "year"
	KindPeriod EventKind = "period"
	KindEvent  EventKind = "event"
	KindItem   EventKind = "item"
)

// EventKinds lists every kind in hierarchy order.
var EventKinds = []EventKind{KindYear, KindPeriod, KindEvent, KindItem}

// Rank returns the position of k in the hierarchy (year = 0), or -1 for an
// unknown kind.
func (k EventKind) Rank() int {
	for i, kind := range EventKinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k is one of the four known kinds.
func (k EventKind) Valid() bool { return k.Rank() >= 0 }

// Above reports whether k sits strictly higher in the hierarchy than other.
func (k EventKind) Above(other EventKind) bool {
	return k.Valid() && other.Valid() && k.Rank() < other.Rank()
}

// Validate implements validation.Validatable.
func (k EventKind) Validate() error {
	return validation.Validate(string(k), validation.Required, validation.In(kindStrings()...))
}

func kindStrings() []any {
	out := make([]any, len(EventKinds))
	for i, k := range EventKinds {
		out[i] = string(k)
	}
	return out
}

// Event is a timeline node.
type Event struct {
	ID           string     `json:"id"`
	Kind         EventKind  `json:"type"`
	Title        string     `json:"title,omitempty"`
	StartAt      time.Time  `json:"start_at"`
	EndAt        *time.Time `json:"end_at,omitempty"`
	ParentID     string     `json:"parent_id,omitempty"`
	CoverMediaID string     `json:"cover_media_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
