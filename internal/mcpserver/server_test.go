package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/query"
	"github.com/starford/lifeline/internal/testutil"
	"github.com/starford/lifeline/internal/timeline"
)

func testServer(t *testing.T) (*Server, *testutil.Stores) {
	t.Helper()
	s := testutil.TestStores(t)
	svc := timeline.New(s.Entities, s.Canvas, s.Query, nil)
	return New(svc, "test"), s
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_events":  srv.listEvents,
		"get_event":    srv.getEvent,
		"list_items":   srv.listItems,
		"get_canvas":   srv.getCanvas,
		"create_event": srv.createEvent,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndGetEvent(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_event", map[string]any{"type": "year", "start_at": "2020-01-01", "title": "2020"})
	if r.IsError {
		t.Fatalf("create year: %s", resultText(r))
	}
	var year models.Event
	if err := json.Unmarshal([]byte(resultText(r)), &year); err != nil {
		t.Fatal(err)
	}

	r = callTool(t, srv, "create_event", map[string]any{"type": "period", "start_at": "2020-06-01", "parent_id": year.ID})
	if r.IsError {
		t.Fatalf("create period: %s", resultText(r))
	}
	var period models.Event
	if err := json.Unmarshal([]byte(resultText(r)), &period); err != nil {
		t.Fatal(err)
	}

	r = callTool(t, srv, "get_event", map[string]any{"id": period.ID})
	var detail eventDetail
	if err := json.Unmarshal([]byte(resultText(r)), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Event.ID != period.ID || len(detail.Ancestors) != 1 || detail.Ancestors[0].ID != year.ID {
		t.Errorf("detail = %+v", detail)
	}
}

func TestCreateEvent_HierarchyError(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "create_event", map[string]any{"type": "event", "start_at": "2020-01-01"})
	if !r.IsError {
		t.Fatal("expected error for event without parent")
	}
	if !strings.Contains(resultText(r), "requires a parent") {
		t.Errorf("error text = %q", resultText(r))
	}
}

func TestListEvents(t *testing.T) {
	srv, s := testServer(t)
	y := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	s.MustEvent(t, models.KindPeriod, "2020-06-01", y)

	var roots []models.Event
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_events", map[string]any{}))), &roots); err != nil {
		t.Fatal(err)
	}
	if len(roots) != 1 {
		t.Errorf("roots = %d, want 1", len(roots))
	}

	var ranged []models.Event
	r := callTool(t, srv, "list_events", map[string]any{"from": "2020-05-01"})
	if err := json.Unmarshal([]byte(resultText(r)), &ranged); err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 {
		t.Errorf("ranged = %d, want 1", len(ranged))
	}

	if r := callTool(t, srv, "list_events", map[string]any{"to": "never"}); !r.IsError {
		t.Error("expected error for malformed bound")
	}
}

func TestListEvents_OpenRangeReachesLastDay(t *testing.T) {
	srv, s := testServer(t)
	last := s.MustEvent(t, models.KindYear, "9999-12-31T12:00:00Z", "")

	var ranged []models.Event
	r := callTool(t, srv, "list_events", map[string]any{"from": "9999-01-01"})
	if err := json.Unmarshal([]byte(resultText(r)), &ranged); err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 || ranged[0].ID != last {
		t.Errorf("ranged = %+v, want only %s", ranged, last)
	}
}

func TestItemsAndCanvas(t *testing.T) {
	srv, s := testServer(t)
	ev := s.MustEvent(t, models.KindYear, "2020-01-01", "")
	placed := s.MustItem(t, ev, "placed")
	s.MustItem(t, ev, "loose")
	if _, err := s.Canvas.PlaceItem(context.Background(), ev, placed, 1, 1); err != nil {
		t.Fatal(err)
	}

	var items []models.Item
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_items", map[string]any{"event_id": ev}))), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}

	var view query.CanvasView
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "get_canvas", map[string]any{"event_id": ev}))), &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Placed) != 1 || len(view.Unplaced) != 1 {
		t.Errorf("canvas = %+v", view)
	}

	if r := callTool(t, srv, "get_canvas", map[string]any{"event_id": "nope"}); !r.IsError {
		t.Error("expected error for missing event")
	}
}
