package models

import (
	"errors"
	"math"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// CanvasItem places one Item on the canvas of its Event.
type CanvasItem struct {
	EventID  string  `json:"event_id"`
	ItemID   string  `json:"item_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	ZIndex   int     `json:"z_index"`
}

// Validate implements validation.Validatable.
func (c CanvasItem) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.EventID, validation.Required),
		validation.Field(&c.ItemID, validation.Required),
		validation.Field(&c.X, Finite),
		validation.Field(&c.Y, Finite),
		validation.Field(&c.Scale, Finite, validation.By(positive)),
		validation.Field(&c.Rotation, Finite),
	)
}

// BBox is an axis-aligned canvas rectangle, inclusive on every edge.
type BBox struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Validate implements validation.Validatable.
func (b BBox) Validate() error {
	if err := validation.ValidateStruct(&b,
		validation.Field(&b.MinX, Finite),
		validation.Field(&b.MinY, Finite),
		validation.Field(&b.MaxX, Finite),
		validation.Field(&b.MaxY, Finite),
	); err != nil {
		return err
	}
	if b.MaxX < b.MinX || b.MaxY < b.MinY {
		return errors.New("max corner must not precede min corner")
	}
	return nil
}

// Contains reports whether (x, y) lies inside b.
func (b BBox) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

type finiteRule struct{}

func (finiteRule) Validate(value any) error {
	v, _ := validation.Indirect(value)
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return errors.New("must be a finite number")
	}
	return nil
}

// Finite rejects NaN and infinities.
var Finite = finiteRule{}

func positive(value any) error {
	v, _ := validation.Indirect(value)
	if f, ok := v.(float64); ok && f <= 0 {
		return errors.New("must be greater than zero")
	}
	return nil
}
