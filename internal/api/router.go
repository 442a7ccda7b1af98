package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig wires the API router.
type RouterConfig struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes. It is meant to be
// mounted under /api.
func NewRouter(h *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Unauthenticated liveness for clients probing the API base URL.
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

		r.Get("/status", h.Status)

		// Documents.
		r.Get("/files", h.ListFiles)
		r.Post("/files", h.CreateFile)
		r.Get("/files/*", h.GetFile)
		r.Put("/files/*", h.PutFile)
		r.Delete("/files/*", h.DeleteFile)
		r.Get("/backlinks/*", h.Backlinks)

		r.Get("/search", h.Search)
		r.Get("/graph", h.Graph)

		// Projects.
		r.Get("/projects", h.ListProjects)
		r.Get("/projects/{name}/tree", h.ProjectTree)
		r.Get("/projects/{name}/file/*", h.GetProjectFile)
		r.Put("/projects/{name}/file/*", h.PutProjectFile)

		if cfg.Events != nil {
			r.Get("/events", cfg.Events.ServeHTTP)
		}
	})

	return r
}
