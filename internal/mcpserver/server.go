// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes timeline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/timeline"
)

const contractURI = "lifeline://hierarchy"

// Server wraps the MCP server with timeline tools.
type Server struct {
	mcp *server.MCPServer
	svc *timeline.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *timeline.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Lifeline",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_events",
		mcp.WithDescription("List root events (years), or every event starting in [from, to) when a range is given."),
		mcp.WithString("from", mcp.Description("Range start, ISO-8601 (inclusive)")),
		mcp.WithString("to", mcp.Description("Range end, ISO-8601 (exclusive)")),
	), s.listEvents)

	s.mcp.AddTool(mcp.NewTool("get_event",
		mcp.WithDescription("Get one event with its ancestor chain (root first) and direct children."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Event ID")),
	), s.getEvent)

	s.mcp.AddTool(mcp.NewTool("list_items",
		mcp.WithDescription("List the items of an event, dated items first."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
	), s.listItems)

	s.mcp.AddTool(mcp.NewTool("get_canvas",
		mcp.WithDescription("Get an event's canvas: placed items back to front, plus unplaced items."),
		mcp.WithString("event_id", mcp.Required(), mcp.Description("Event ID")),
	), s.getCanvas)

	s.mcp.AddTool(mcp.NewTool("create_event",
		mcp.WithDescription("Create an event. Read the "+contractURI+" resource first for the hierarchy rules."),
		mcp.WithString("type", mcp.Required(), mcp.Description("One of year, period, event, item"),
			mcp.Enum(string(models.KindYear), string(models.KindPeriod), string(models.KindEvent), string(models.KindItem))),
		mcp.WithString("start_at", mcp.Required(), mcp.Description("ISO-8601 start")),
		mcp.WithString("end_at", mcp.Description("ISO-8601 end, not before start_at")),
		mcp.WithString("title", mcp.Description("Display title")),
		mcp.WithString("parent_id", mcp.Description("Parent event ID; required unless type is year")),
	), s.createEvent)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Timeline Hierarchy Contract",
			mcp.WithResourceDescription("Rules every event must satisfy."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContract,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listEvents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, to := req.GetString("from", ""), req.GetString("to", "")
	if from == "" && to == "" {
		events, err := s.svc.ListRoots(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(events)
	}

	start, end := models.MinInstant, models.MaxInstant
	var err error
	if from != "" {
		if start, err = models.ParseInstant(from); err != nil {
			return mcp.NewToolResultError("from: " + err.Error()), nil
		}
	}
	if to != "" {
		if end, err = models.ParseInstant(to); err != nil {
			return mcp.NewToolResultError("to: " + err.Error()), nil
		}
	}
	events, err := s.svc.ListRange(ctx, start, end)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(events)
}

type eventDetail struct {
	Event     *models.Event  `json:"event"`
	Ancestors []models.Event `json:"ancestors"`
	Children  []models.Event `json:"children"`
}

func (s *Server) getEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ev, err := s.svc.GetEvent(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ancestors, err := s.svc.Ancestors(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	children, err := s.svc.ListChildren(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(eventDetail{Event: ev, Ancestors: ancestors, Children: children})
}

func (s *Server) listItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventID, err := req.RequireString("event_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items, err := s.svc.ListItems(ctx, eventID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(items)
}

func (s *Server) getCanvas(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	eventID, err := req.RequireString("event_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.Canvas(ctx, eventID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(view)
}

func (s *Server) createEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, err := req.RequireString("start_at")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ev, err := s.svc.CreateEvent(ctx, entity.NewEvent{
		Kind:     models.EventKind(kind),
		Title:    req.GetString("title", ""),
		StartAt:  start,
		EndAt:    req.GetString("end_at", ""),
		ParentID: req.GetString("parent_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(ev)
}

func (s *Server) readContract(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     HierarchyContract,
		},
	}, nil
}
