package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/checksum"
	"github.com/starford/bread/internal/site"
)

// Handler holds API route handlers.
type Handler struct {
	svc Site
}

// NewHandler creates a new Handler.
func NewHandler(svc Site) *Handler {
	return &Handler{svc: svc}
}

// GetBuild handles GET /api/build.
//
//	@Summary		Latest build record
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	BuildStatusResponse
//	@Router			/build [get]
func (h *Handler) GetBuild(w http.ResponseWriter, r *http.Request) {
	resp := BuildStatusResponse{Building: h.svc.Building()}
	b, err := h.svc.LatestBuild(r.Context())
	switch {
	case err == nil:
		resp.Latest = b
	case errors.Is(err, apperr.ErrNotFound):
	default:
		internalError(w, "latest build failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PostBuild handles POST /api/build.
//
//	@Summary		Run a full build
//	@Tags			build
//	@Produce		json
//	@Success		200	{object}	site.Report
//	@Failure		409	{object}	errResponse
//	@Failure		422	{object}	site.Report
//	@Security		BearerAuth
//	@Router			/build [post]
func (h *Handler) PostBuild(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.TryRebuild(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrBuilding) {
			writeJSON(w, http.StatusConflict, errorBody(err.Error()))
			return
		}
		internalError(w, "build failed", err)
		return
	}
	status := http.StatusOK
	if rep.Outcome == site.OutcomeFatal {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, rep)
}

// ListPages handles GET /api/pages.
//
//	@Summary		List built pages, newest first
//	@Tags			pages
//	@Produce		json
//	@Param			tag		query		string	false	"Filter by tag"
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	PageListResponse
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	pages, total, err := h.svc.ListPages(r.Context(), q.Get("tag"), limit, offset)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			// Nothing built yet.
			writeJSON(w, http.StatusOK, PageListResponse{Pages: []catalog.PageRow{}})
			return
		}
		internalError(w, "list pages failed", err)
		return
	}
	writeJSON(w, http.StatusOK, PageListResponse{Pages: pages, Total: total})
}

// GetPage handles GET /api/pages/{slug}. The page checksum doubles as its
// ETag.
//
//	@Summary		Get one built page by slug
//	@Tags			pages
//	@Produce		json
//	@Param			slug	path		string	true	"Page slug"
//	@Success		200		{object}	catalog.PageRow
//	@Success		304		"Not modified"
//	@Failure		404		{object}	errResponse
//	@Router			/pages/{slug} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	page, err := h.svc.GetPage(r.Context(), slug)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			internalError(w, "get page failed", err, slog.String("slug", slug))
		}
		return
	}
	if page.Checksum != "" {
		w.Header().Set("ETag", checksum.ETag(page.Checksum))
		if checksum.Match(r.Header.Get("If-None-Match"), page.Checksum) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, http.StatusOK, page)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across built pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		internalError(w, "search failed", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
