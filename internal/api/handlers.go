package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifeline/internal/entity"
	"github.com/starford/lifeline/internal/models"
	"github.com/starford/lifeline/internal/timeline"
)

// Handler holds API route handlers.
type Handler struct {
	svc *timeline.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *timeline.Service) *Handler {
	return &Handler{svc: svc}
}

// ListEvents handles GET /api/events.
//
//	@Summary		List root events, or events starting within a time range
//	@Tags			events
//	@Produce		json
//	@Param			from	query		string	false	"Range start (inclusive), ISO-8601"
//	@Param			to		query		string	false	"Range end (exclusive), ISO-8601"
//	@Success		200		{object}	EventListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events [get]
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")

	var (
		events []models.Event
		err    error
	)
	if from == "" && to == "" {
		events, err = h.svc.ListRoots(r.Context())
	} else {
		start, end := models.MinInstant, models.MaxInstant
		if from != "" {
			if start, err = models.ParseInstant(from); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("from: "+err.Error()))
				return
			}
		}
		if to != "" {
			if end, err = models.ParseInstant(to); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody("to: "+err.Error()))
				return
			}
		}
		events, err = h.svc.ListRange(r.Context(), start, end)
	}
	if err != nil {
		writeError(w, "list events", err)
		return
	}
	writeJSON(w, http.StatusOK, EventListResponse{Events: events})
}

// CreateEvent handles POST /api/events.
//
//	@Summary		Create an event
//	@Tags			events
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEventRequest	true	"Event to create"
//	@Success		201		{object}	models.Event
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events [post]
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := h.svc.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, "create event", err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// GetEvent handles GET /api/events/{id}.
//
//	@Summary		Get an event
//	@Tags			events
//	@Produce		json
//	@Param			id	path		string	true	"Event ID"
//	@Success		200	{object}	models.Event
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id} [get]
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.svc.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// UpdateEvent handles PATCH /api/events/{id}.
//
//	@Summary		Patch an event
//	@Tags			events
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Event ID"
//	@Param			body	body		UpdateEventRequest	true	"Fields to change"
//	@Success		200		{object}	models.Event
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id} [patch]
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ev, err := h.svc.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update event", err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// DeleteEvent handles DELETE /api/events/{id}.
//
//	@Summary		Delete an event
//	@Tags			events
//	@Param			id		path	string	true	"Event ID"
//	@Param			cascade	query	bool	false	"Also delete descendants, items and placements"
//	@Success		204		"Event deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id} [delete]
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	cascade := false
	if v := r.URL.Query().Get("cascade"); v != "" {
		var err error
		if cascade, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("cascade must be a boolean"))
			return
		}
	}
	if err := h.svc.DeleteEvent(r.Context(), chi.URLParam(r, "id"), cascade); err != nil {
		writeError(w, "delete event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListChildren handles GET /api/events/{id}/children.
func (h *Handler) ListChildren(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListChildren(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list children", err)
		return
	}
	writeJSON(w, http.StatusOK, EventListResponse{Events: events})
}

// Ancestors handles GET /api/events/{id}/ancestors. The chain is root first.
func (h *Handler) Ancestors(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Ancestors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "ancestors", err)
		return
	}
	writeJSON(w, http.StatusOK, EventListResponse{Events: events})
}

// Tree handles GET /api/events/{id}/tree.
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	node, err := h.svc.Subtree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "subtree", err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

// ListItems handles GET /api/events/{id}/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemListResponse{Items: items})
}

// CreateItem handles POST /api/events/{id}/items.
//
//	@Summary		Attach an item to an event
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Event ID"
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id}/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	it, err := h.svc.CreateItem(r.Context(), entity.NewItem{
		EventID:    chi.URLParam(r, "id"),
		Type:       req.Type,
		Content:    req.Content,
		Caption:    req.Caption,
		HappenedAt: req.HappenedAt,
		Point:      req.Point,
		PlaceLabel: req.PlaceLabel,
	})
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.svc.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get item", err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// UpdateItem handles PATCH /api/items/{id}.
//
//	@Summary		Patch an item; setting event_id moves it and drops its placement
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Item ID"
//	@Param			body	body		UpdateItemRequest	true	"Fields to change"
//	@Success		200		{object}	models.Item
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [patch]
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	it, err := h.svc.UpdateItem(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// DeleteItem handles DELETE /api/items/{id}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
