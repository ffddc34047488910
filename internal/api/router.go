package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/echoes/internal/entryservice"
	"github.com/starford/echoes/internal/session"
	"github.com/starford/echoes/internal/sse"
)

// NewRouter creates a chi router with all API routes mounted.
// broker serves both the global stream (GET /events) and per-session streams.
func NewRouter(svc *entryservice.Service, sessions *session.Manager, broker *sse.Broker) chi.Router {
	h := NewHandler(svc, sessions, broker)

	r := chi.NewRouter()

	// Catalog entries.
	r.Get("/entries", h.ListEntries)
	r.Get("/entries/{id}", h.GetEntry)
	r.With(RequireCredential).Post("/entries", h.AddEntry)

	r.Get("/catalog", h.Catalog)
	r.Post("/catalog/reload", h.ReloadCatalog)

	// Stateless routing.
	r.Get("/resolve", h.Resolve)

	// Visitor sessions.
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sid}", func(r chi.Router) {
		r.Use(SessionCtx(sessions))
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Put("/fragment", h.SetFragment)
		r.Post("/home", h.GoHome)
		r.Post("/admin/toggle", h.ToggleAdmin)
		r.Post("/entries/{id}/open", h.OpenEntry)
		r.Put("/credential", h.SetCredential)
		r.Delete("/credential", h.ClearCredential)
		r.Post("/entries", h.SessionAddEntry)
		r.Get("/events", h.SessionEvents)
	})

	r.Get("/events", broker.ServeHTTP)

	return r
}
