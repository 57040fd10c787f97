package entity_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lifeline/internal/apperr"
	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/store"
	"github.com/starford/lifeline/internal/testutil"
)

func ptr[T any](v T) *T { return &v }

func count(t *testing.T, s *testutil.Stores, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB.SQL().QueryRow(`SELECT count(*) FROM `+table).Scan(&n))
	return n
}

func TestCreateEvent_RoundTrip(t *testing.T) {
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := testutil.TestStores(t,
		entity.WithClock(func() time.Time { return clock }),
		entity.WithIDGenerator(func() string { return "fixed-id" }))
	ctx := context.Background()

	id, err := s.Entities.CreateEvent(ctx, entity.NewEvent{
		Kind:         models.KindYear,
		Title:        "2020",
		StartAt:      "2020-01-01",
		EndAt:        "2020-12-31T23:59:59Z",
		CoverMediaID: "media-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", id)

	got, err := s.Entities.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.KindYear, got.Kind)
	assert.Equal(t, "2020", got.Title)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got.StartAt)
	require.NotNil(t, got.EndAt)
	assert.Equal(t, time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC), *got.EndAt)
	assert.Empty(t, got.ParentID)
	assert.Equal(t, "media-1", got.CoverMediaID)
	assert.Equal(t, clock, got.CreatedAt)
	assert.Equal(t, clock, got.UpdatedAt)
}

func TestCreateEvent_Validation(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()
	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")

	tests := []struct {
		name string
		in   entity.NewEvent
		want error
	}{
		{"unknown kind", entity.NewEvent{Kind: "decade", StartAt: "2020-01-01"}, apperr.ErrValidation},
		{"missing start", entity.NewEvent{Kind: models.KindYear}, apperr.ErrValidation},
		{"malformed start", entity.NewEvent{Kind: models.KindYear, StartAt: "yesterday"}, apperr.ErrValidation},
		{"end before start", entity.NewEvent{Kind: models.KindYear, StartAt: "2020-02-01", EndAt: "2020-01-01"}, apperr.ErrValidation},
		{"event without parent", entity.NewEvent{Kind: models.KindEvent, StartAt: "2020-01-01"}, apperr.ErrInvalidHierarchy},
		{"year with parent", entity.NewEvent{Kind: models.KindYear, StartAt: "2021-01-01", ParentID: year}, apperr.ErrInvalidHierarchy},
		{"missing parent", entity.NewEvent{Kind: models.KindPeriod, StartAt: "2020-01-01", ParentID: "nope"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Entities.CreateEvent(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 1, count(t, s, "events"))
}

func TestCreateEvent_HierarchyOrdering(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	period := s.MustEvent(t, models.KindPeriod, "2020-02-01", year)
	event := s.MustEvent(t, models.KindEvent, "2020-02-02", period)

	// Adjacency is not required: an item marker may hang off a year.
	s.MustEvent(t, models.KindItem, "2020-03-01", year)
	s.MustEvent(t, models.KindItem, "2020-03-02", event)

	_, err := s.Entities.CreateEvent(ctx, entity.NewEvent{Kind: models.KindPeriod, StartAt: "2020-04-01", ParentID: event})
	require.ErrorIs(t, err, apperr.ErrInvalidHierarchy)

	_, err = s.Entities.CreateEvent(ctx, entity.NewEvent{Kind: models.KindEvent, StartAt: "2020-04-01", ParentID: s.MustEvent(t, models.KindEvent, "2020-04-01", period)})
	require.ErrorIs(t, err, apperr.ErrInvalidHierarchy, "same rank is not strictly above")
}

func TestHierarchyInvariantHoldsForAllEvents(t *testing.T) {
	s := testutil.TestStores(t)
	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	period := s.MustEvent(t, models.KindPeriod, "2020-02-01", year)
	s.MustEvent(t, models.KindEvent, "2020-02-02", period)
	s.MustEvent(t, models.KindItem, "2020-02-03", year)

	rows, err := s.DB.SQL().Query(`
		SELECT c.type, p.type FROM events c LEFT JOIN events p ON p.id = c.parent_id`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var child models.EventKind
		var parent *string
		require.NoError(t, rows.Scan(&child, &parent))
		if child == models.KindYear {
			assert.Nil(t, parent)
			continue
		}
		require.NotNil(t, parent)
		assert.True(t, models.EventKind(*parent).Above(child), "%s under %s", child, *parent)
	}
	require.NoError(t, rows.Err())
}

func TestUpdateEvent(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := testutil.TestStores(t, entity.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	period := s.MustEvent(t, models.KindPeriod, "2020-06-01", year)
	event := s.MustEvent(t, models.KindEvent, "2020-06-02", period)

	t.Run("fields and updated_at", func(t *testing.T) {
		clock = clock.Add(time.Hour)
		require.NoError(t, s.Entities.UpdateEvent(ctx, period, entity.EventPatch{
			Title: ptr("Summer"),
			EndAt: ptr("2020-08-01"),
		}))
		got, err := s.Entities.GetEvent(ctx, period)
		require.NoError(t, err)
		assert.Equal(t, "Summer", got.Title)
		require.NotNil(t, got.EndAt)
		assert.Equal(t, clock, got.UpdatedAt)
		assert.True(t, got.UpdatedAt.After(got.CreatedAt))
	})

	t.Run("clear optional field", func(t *testing.T) {
		require.NoError(t, s.Entities.UpdateEvent(ctx, period, entity.EventPatch{EndAt: ptr("")}))
		got, err := s.Entities.GetEvent(ctx, period)
		require.NoError(t, err)
		assert.Nil(t, got.EndAt)
	})

	t.Run("end before merged start", func(t *testing.T) {
		err := s.Entities.UpdateEvent(ctx, period, entity.EventPatch{EndAt: ptr("2020-05-01")})
		require.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("kind change must stay above children", func(t *testing.T) {
		err := s.Entities.UpdateEvent(ctx, period, entity.EventPatch{Kind: ptr(models.KindEvent)})
		require.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	})

	t.Run("reparent under own descendant", func(t *testing.T) {
		err := s.Entities.UpdateEvent(ctx, period, entity.EventPatch{ParentID: ptr(event)})
		require.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	})

	t.Run("drop parent of non-year", func(t *testing.T) {
		err := s.Entities.UpdateEvent(ctx, event, entity.EventPatch{ParentID: ptr("")})
		require.ErrorIs(t, err, apperr.ErrInvalidHierarchy)
	})

	t.Run("reparent to year", func(t *testing.T) {
		require.NoError(t, s.Entities.UpdateEvent(ctx, event, entity.EventPatch{ParentID: ptr(year)}))
		got, err := s.Entities.GetEvent(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, year, got.ParentID)
	})

	t.Run("missing", func(t *testing.T) {
		err := s.Entities.UpdateEvent(ctx, "nope", entity.EventPatch{Title: ptr("x")})
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestDeleteEvent_Cascade(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	y1 := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	p1, err := s.Entities.CreateEvent(ctx, entity.NewEvent{
		Kind: models.KindPeriod, StartAt: "2020-06-01", EndAt: "2020-08-01", ParentID: y1,
	})
	require.NoError(t, err)
	e1 := s.MustEvent(t, models.KindEvent, "2020-06-15", p1)
	i1 := s.MustItem(t, e1, "hello")
	_, err = s.Canvas.PlaceItem(ctx, e1, i1, 10, 20)
	require.NoError(t, err)

	other := s.MustEvent(t, models.KindYear, "2021-01-01", "")
	otherItem := s.MustItem(t, other, "keep me")
	_, err = s.Canvas.PlaceItem(ctx, other, otherItem, 0, 0)
	require.NoError(t, err)

	require.NoError(t, s.Entities.DeleteEvent(ctx, y1, true))

	for _, id := range []string{y1, p1, e1} {
		_, err := s.Entities.GetEvent(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, id)
	}
	_, err = s.Entities.GetItem(ctx, i1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = s.Canvas.GetPlacement(ctx, e1, i1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, 1, count(t, s, "events"))
	assert.Equal(t, 1, count(t, s, "items"))
	assert.Equal(t, 1, count(t, s, "canvas_items"))

	err = s.Entities.DeleteEvent(ctx, y1, true)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteEvent_WithoutCascade(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	y1 := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	p1 := s.MustEvent(t, models.KindPeriod, "2020-06-01", y1)
	e1 := s.MustEvent(t, models.KindEvent, "2020-06-15", p1)

	err := s.Entities.DeleteEvent(ctx, p1, false)
	require.ErrorIs(t, err, apperr.ErrConflict)
	_, err = s.Entities.GetEvent(ctx, p1)
	require.NoError(t, err)

	item := s.MustItem(t, e1, "note")
	require.ErrorIs(t, s.Entities.DeleteEvent(ctx, e1, false), apperr.ErrConflict)

	require.NoError(t, s.Entities.DeleteItem(ctx, item))
	require.NoError(t, s.Entities.DeleteEvent(ctx, e1, false))
	require.NoError(t, s.Entities.DeleteEvent(ctx, p1, false))
	assert.Equal(t, 1, count(t, s, "events"))
}

// flakyPurger fails on its nth call.
type flakyPurger struct {
	calls, failOn int
}

func (p *flakyPurger) PurgeItemsTx(context.Context, *sql.Tx, []string) (int64, error) {
	p.calls++
	if p.calls == p.failOn {
		return 0, errors.New("disk on fire")
	}
	return 0, nil
}

func TestDeleteEvent_CascadeIsAtomic(t *testing.T) {
	db := testutil.TestDB(t)
	purger := &flakyPurger{failOn: 2}
	ents := entity.New(db, purger, entity.WithLogger(testutil.Logger()))
	s := &testutil.Stores{DB: db, Entities: ents}
	ctx := context.Background()

	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	period := s.MustEvent(t, models.KindPeriod, "2020-02-01", year)
	s.MustItem(t, s.MustEvent(t, models.KindEvent, "2020-02-02", period), "a")
	s.MustItem(t, s.MustEvent(t, models.KindEvent, "2020-02-03", period), "b")

	err := ents.DeleteEvent(ctx, year, true)
	require.ErrorContains(t, err, "disk on fire")
	assert.Equal(t, 2, purger.calls)

	assert.Equal(t, 4, count(t, s, "events"), "first leaf deletion rolled back")
	assert.Equal(t, 2, count(t, s, "items"))
}

func TestItems_CRUD(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()
	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")

	id, err := s.Entities.CreateItem(ctx, entity.NewItem{
		EventID:    year,
		Type:       models.ItemPhoto,
		Content:    "media://beach",
		Caption:    "beach",
		HappenedAt: "2020-07-04T10:00:00+02:00",
		Point:      &models.GeoPoint{Lat: 43.7, Lng: 7.26},
		PlaceLabel: "Nice",
	})
	require.NoError(t, err)

	got, err := s.Entities.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ItemPhoto, got.Type)
	assert.Equal(t, "beach", got.Caption)
	require.NotNil(t, got.HappenedAt)
	assert.Equal(t, time.Date(2020, 7, 4, 8, 0, 0, 0, time.UTC), *got.HappenedAt)
	assert.Equal(t, &models.GeoPoint{Lat: 43.7, Lng: 7.26}, got.Point)

	require.NoError(t, s.Entities.UpdateItem(ctx, id, entity.ItemPatch{
		Caption:    ptr(""),
		ClearPoint: true,
		Content:    ptr("media://beach-2"),
	}))
	got, err = s.Entities.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, got.Caption)
	assert.Nil(t, got.Point)
	assert.Equal(t, "media://beach-2", got.Content)
	assert.Equal(t, "Nice", got.PlaceLabel)

	require.NoError(t, s.Entities.DeleteItem(ctx, id))
	_, err = s.Entities.GetItem(ctx, id)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, s.Entities.DeleteItem(ctx, id), apperr.ErrNotFound)
}

func TestCreateItem_Validation(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()
	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")

	tests := []struct {
		name string
		in   entity.NewItem
		want error
	}{
		{"unknown type", entity.NewItem{EventID: year, Type: "audio", Content: "x"}, apperr.ErrValidation},
		{"empty content", entity.NewItem{EventID: year, Type: models.ItemText}, apperr.ErrValidation},
		{"latitude out of range", entity.NewItem{EventID: year, Type: models.ItemText, Content: "x", Point: &models.GeoPoint{Lat: 91}}, apperr.ErrValidation},
		{"bad happened_at", entity.NewItem{EventID: year, Type: models.ItemText, Content: "x", HappenedAt: "soon"}, apperr.ErrValidation},
		{"missing event", entity.NewItem{EventID: "nope", Type: models.ItemText, Content: "x"}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Entities.CreateItem(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, 0, count(t, s, "items"))
}

func TestUpdateItem_MoveDropsPlacement(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	a := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	b := s.MustEvent(t, models.KindYear, "2021-01-01", "")
	item := s.MustItem(t, a, "travelling")
	_, err := s.Canvas.PlaceItem(ctx, a, item, 1, 2)
	require.NoError(t, err)

	require.ErrorIs(t, s.Entities.UpdateItem(ctx, item, entity.ItemPatch{EventID: ptr("nope")}), apperr.ErrNotFound)
	_, err = s.Canvas.GetPlacement(ctx, a, item)
	require.NoError(t, err, "failed move keeps the placement")

	require.NoError(t, s.Entities.UpdateItem(ctx, item, entity.ItemPatch{EventID: ptr(b)}))
	got, err := s.Entities.GetItem(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, b, got.EventID)
	assert.Equal(t, 0, count(t, s, "canvas_items"))
}

func TestListEventsByTimeRange(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	y2019 := s.MustEvent(t, models.KindYear, "2019-01-01", "")
	y2020 := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	p := s.MustEvent(t, models.KindPeriod, "2020-06-01", y2020)
	s.MustEvent(t, models.KindYear, "2021-01-01", "")

	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	seq := s.Entities.ListEventsByTimeRange(ctx, start, end)

	events, err := store.Collect(seq)
	require.NoError(t, err)
	var ids []string
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{y2019, y2020, p}, ids, "start inclusive, end exclusive, ascending")

	again, err := store.Collect(seq)
	require.NoError(t, err)
	assert.Equal(t, events, again, "sequence is restartable")

	for e, err := range seq {
		require.NoError(t, err)
		assert.Equal(t, y2019, e.ID)
		break
	}

	_, err = store.Collect(s.Entities.ListEventsByTimeRange(ctx, end, start))
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestListChildrenAndItems(t *testing.T) {
	s := testutil.TestStores(t)
	ctx := context.Background()

	year := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	late := s.MustEvent(t, models.KindPeriod, "2020-09-01", year)
	early := s.MustEvent(t, models.KindPeriod, "2020-03-01", year)

	children, err := store.Collect(s.Entities.ListChildren(ctx, year))
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, early, children[0].ID)
	assert.Equal(t, late, children[1].ID)

	undated := s.MustItem(t, year, "undated")
	dated, err := s.Entities.CreateItem(ctx, entity.NewItem{
		EventID: year, Type: models.ItemLink, Content: "https://example.com", HappenedAt: "2020-05-05",
	})
	require.NoError(t, err)

	items, err := store.Collect(s.Entities.ListItems(ctx, year))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, dated, items[0].ID)
	assert.Equal(t, undated, items[1].ID)

	_, err = store.Collect(s.Entities.ListChildren(ctx, "nope"))
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = store.Collect(s.Entities.ListItems(ctx, "nope"))
	require.ErrorIs(t, err, apperr.ErrNotFound)

	roots, err := store.Collect(s.Entities.ListRoots(ctx))
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, year, roots[0].ID)
}
