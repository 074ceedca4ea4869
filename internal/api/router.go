package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// Reads are open; POST /build requires the Bearer token when authEnabled.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc Site, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	// Builds.
	r.Get("/build", h.GetBuild)
	r.With(AuthMiddleware(authEnabled, token)).Post("/build", h.PostBuild)

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Get("/pages/{slug}", h.GetPage)

	// Search.
	r.Get("/search", h.Search)

	// Build events for live reload.
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// SiteHandler serves the output root of the last build.
func SiteHandler(root string) http.Handler {
	return NoCache(http.FileServer(http.Dir(root)))
}
