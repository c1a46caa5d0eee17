package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mnemo/internal/noteservice"
	"github.com/starford/mnemo/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced; every route
// additionally requires the X-User-ID header. broker, if non-nil, serves
// the event stream at GET /events.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, broker *sse.Broker) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Use(UserMiddleware)

	// Notes CRUD + rating.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Put("/notes/{id}/rating", h.RateNote)

	// Tags.
	r.Get("/tags", h.ListTags)
	r.Post("/tags", h.CreateTag)
	r.Delete("/tags/{id}", h.DeleteTag)

	// Manual synchronization.
	r.Post("/sync", h.Sync)

	// Import/export.
	r.Post("/import", h.Import)
	r.Post("/export", h.Export)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)

	// SSE endpoint (same auth, scoped to the requesting user).
	if broker != nil {
		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			broker.Serve(w, r, session(r).UserID)
		})
	}

	return r
}
