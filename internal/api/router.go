package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifeline/internal/timeline"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /stream inside the auth group.
func NewRouter(svc *timeline.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetEvent)
			r.Patch("/", h.UpdateEvent)
			r.Delete("/", h.DeleteEvent)

			r.Get("/children", h.ListChildren)
			r.Get("/ancestors", h.Ancestors)
			r.Get("/tree", h.Tree)

			r.Get("/items", h.ListItems)
			r.Post("/items", h.CreateItem)

			r.Get("/canvas", h.GetCanvas)
			r.Get("/canvas/viewport", h.Viewport)
			r.Put("/canvas/{itemID}", h.PlaceItem)
			r.Patch("/canvas/{itemID}", h.UpdatePlacement)
			r.Delete("/canvas/{itemID}", h.RemovePlacement)
			r.Post("/canvas/{itemID}/front", h.BringToFront)
		})
	})

	r.Route("/items/{id}", func(r chi.Router) {
		r.Get("/", h.GetItem)
		r.Patch("/", h.UpdateItem)
		r.Delete("/", h.DeleteItem)
	})

	if sseHandler != nil {
		r.Get("/stream", sseHandler.ServeHTTP)
	}

	return r
}
