// Package query assembles read models from committed state: ancestor chains,
// canvas views and event subtrees. It never writes.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/canvas"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
)

// DefaultMaxDepth bounds every hierarchy walk.
const DefaultMaxDepth = 32

// PlacedItem is an item together with its placement.
type PlacedItem struct {
	Item      models.Item       `json:"item"`
	Placement models.CanvasItem `json:"placement"`
}

// CanvasView is everything needed to draw one event's canvas.
type CanvasView struct {
	Event    models.Event  `json:"event"`
	Placed   []PlacedItem  `json:"placed"`
	Unplaced []models.Item `json:"unplaced"`
}

// EventNode is one event with its items and nested children.
type EventNode struct {
	Event    models.Event  `json:"event"`
	Items    []models.Item `json:"items,omitempty"`
	Children []*EventNode  `json:"children,omitempty"`
}

// Layer answers composite reads.
type Layer struct {
	entities *entity.Store
	canvas   *canvas.Index
	logger   *slog.Logger

	// MaxDepth bounds Ancestors and Subtree walks.
	MaxDepth int
}

// New creates a query layer.
func New(entities *entity.Store, idx *canvas.Index, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Layer{entities: entities, canvas: idx, logger: logger, MaxDepth: DefaultMaxDepth}
}

func (l *Layer) maxDepth() int {
	if l.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return l.MaxDepth
}

// Ancestors returns the chain from the root down to, but excluding, event id.
// A root event has no ancestors.
func (l *Layer) Ancestors(ctx context.Context, id string) ([]models.Event, error) {
	start, err := l.entities.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query: ancestors: %w", err)
	}

	var chain []models.Event
	seen := map[string]bool{start.ID: true}
	for parentID := start.ParentID; parentID != ""; {
		if seen[parentID] || len(chain) >= l.maxDepth() {
			l.logger.Error("hierarchy cycle detected",
				slog.String("event_id", id), slog.String("at", parentID), slog.Int("depth", len(chain)))
			return nil, fmt.Errorf("query: ancestors: %w: event %q", apperr.ErrCycleDetected, parentID)
		}
		seen[parentID] = true

		parent, err := l.entities.GetEvent(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("query: ancestors: %w", err)
		}
		chain = append(chain, *parent)
		parentID = parent.ParentID
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Canvas splits the items of eventID into placed (back to front) and unplaced.
func (l *Layer) Canvas(ctx context.Context, eventID string) (*CanvasView, error) {
	ev, err := l.entities.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("query: canvas: %w", err)
	}
	items, err := store.Collect(l.entities.ListItems(ctx, eventID))
	if err != nil {
		return nil, fmt.Errorf("query: canvas: %w", err)
	}
	placements, err := store.Collect(l.canvas.ListCanvas(ctx, eventID))
	if err != nil {
		return nil, fmt.Errorf("query: canvas: %w", err)
	}

	byID := make(map[string]models.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	view := &CanvasView{Event: *ev, Placed: []PlacedItem{}, Unplaced: []models.Item{}}
	placed := make(map[string]bool, len(placements))
	for _, p := range placements {
		it, ok := byID[p.ItemID]
		if !ok {
			// Item removed between the two reads.
			continue
		}
		placed[p.ItemID] = true
		view.Placed = append(view.Placed, PlacedItem{Item: it, Placement: p})
	}
	for _, it := range items {
		if !placed[it.ID] {
			view.Unplaced = append(view.Unplaced, it)
		}
	}
	return view, nil
}

// Viewport returns the placed items of eventID inside box, back to front.
func (l *Layer) Viewport(ctx context.Context, eventID string, box models.BBox) ([]PlacedItem, error) {
	out := []PlacedItem{}
	for p, err := range l.canvas.ListInViewport(ctx, eventID, box) {
		if err != nil {
			return nil, fmt.Errorf("query: viewport: %w", err)
		}
		it, err := l.entities.GetItem(ctx, p.ItemID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query: viewport: %w", err)
		}
		out = append(out, PlacedItem{Item: *it, Placement: p})
	}
	return out, nil
}

// Subtree returns event id with its items and all descendants.
func (l *Layer) Subtree(ctx context.Context, id string) (*EventNode, error) {
	root, err := l.entities.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query: subtree: %w", err)
	}
	seen := map[string]bool{}
	node, err := l.subtree(ctx, *root, 0, seen)
	if err != nil {
		return nil, fmt.Errorf("query: subtree: %w", err)
	}
	return node, nil
}

func (l *Layer) subtree(ctx context.Context, ev models.Event, depth int, seen map[string]bool) (*EventNode, error) {
	if seen[ev.ID] || depth > l.maxDepth() {
		return nil, fmt.Errorf("%w: event %q", apperr.ErrCycleDetected, ev.ID)
	}
	seen[ev.ID] = true

	items, err := store.Collect(l.entities.ListItems(ctx, ev.ID))
	if err != nil {
		return nil, err
	}
	children, err := store.Collect(l.entities.ListChildren(ctx, ev.ID))
	if err != nil {
		return nil, err
	}

	node := &EventNode{Event: ev, Items: items}
	for _, child := range children {
		n, err := l.subtree(ctx, child, depth+1, seen)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, n)
	}
	return node, nil
}
