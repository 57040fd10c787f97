package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifeline/internal/models"
)

// GetCanvas handles GET /api/events/{id}/canvas.
//
//	@Summary		Placed items back to front, plus the event's unplaced items
//	@Tags			canvas
//	@Produce		json
//	@Param			id	path		string	true	"Event ID"
//	@Success		200	{object}	query.CanvasView
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id}/canvas [get]
func (h *Handler) GetCanvas(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Canvas(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get canvas", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Viewport handles GET /api/events/{id}/canvas/viewport.
//
//	@Summary		Placed items whose position lies in a box (edges included)
//	@Tags			canvas
//	@Produce		json
//	@Param			id		path		string	true	"Event ID"
//	@Param			min_x	query		number	true	"Left edge"
//	@Param			min_y	query		number	true	"Top edge"
//	@Param			max_x	query		number	true	"Right edge"
//	@Param			max_y	query		number	true	"Bottom edge"
//	@Success		200		{object}	ViewportResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id}/canvas/viewport [get]
func (h *Handler) Viewport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var box models.BBox
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"min_x", &box.MinX}, {"min_y", &box.MinY}, {"max_x", &box.MaxX}, {"max_y", &box.MaxY},
	} {
		v, err := strconv.ParseFloat(q.Get(f.name), 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(f.name+" must be a number"))
			return
		}
		*f.dst = v
	}

	placed, err := h.svc.Viewport(r.Context(), chi.URLParam(r, "id"), box)
	if err != nil {
		writeError(w, "viewport", err)
		return
	}
	writeJSON(w, http.StatusOK, ViewportResponse{Placed: placed})
}

// PlaceItem handles PUT /api/events/{id}/canvas/{itemID}.
//
//	@Summary		Place an item on its event's canvas, replacing any previous placement
//	@Tags			canvas
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Event ID"
//	@Param			itemID	path		string				true	"Item ID"
//	@Param			body	body		PlaceItemRequest	true	"Placement"
//	@Success		200		{object}	models.CanvasItem
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/events/{id}/canvas/{itemID} [put]
func (h *Handler) PlaceItem(w http.ResponseWriter, r *http.Request) {
	var req PlaceItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.PlaceItem(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req)
	if err != nil {
		writeError(w, "place item", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdatePlacement handles PATCH /api/events/{id}/canvas/{itemID}.
func (h *Handler) UpdatePlacement(w http.ResponseWriter, r *http.Request) {
	var req UpdatePlacementRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c, err := h.svc.UpdatePlacement(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"), req)
	if err != nil {
		writeError(w, "update placement", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RemovePlacement handles DELETE /api/events/{id}/canvas/{itemID}.
func (h *Handler) RemovePlacement(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemovePlacement(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID")); err != nil {
		writeError(w, "remove placement", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BringToFront handles POST /api/events/{id}/canvas/{itemID}/front.
func (h *Handler) BringToFront(w http.ResponseWriter, r *http.Request) {
	z, err := h.svc.BringToFront(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "itemID"))
	if err != nil {
		writeError(w, "bring to front", err)
		return
	}
	writeJSON(w, http.StatusOK, FrontResponse{ZIndex: z})
}
