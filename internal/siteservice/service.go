// Package siteservice coordinates builds for the CLI, the dev server and the
// MCP server: one build at a time, the last report kept in memory and
// recorded in the catalog.
package siteservice

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/site"
)

// Builder runs one full build.
type Builder interface {
	Build(ctx context.Context) *site.Report
}

var _ Builder = (*site.Builder)(nil)

// Service serialises builds and answers queries about the latest one.
type Service struct {
	builder Builder
	catalog catalog.Catalog // nil when disabled
	logger  *slog.Logger

	buildMu  sync.Mutex
	building atomic.Bool

	mu   sync.RWMutex
	last *site.Report
	subs []func(*site.Report)
}

// New creates a service. cat may be nil.
func New(b Builder, cat catalog.Catalog, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{builder: b, catalog: cat, logger: logger}
}

// Subscribe registers fn to be called after every build.
func (s *Service) Subscribe(fn func(*site.Report)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Rebuild runs a full build, waiting for any build in progress first.
func (s *Service) Rebuild(ctx context.Context) *site.Report {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.rebuild(ctx)
}

// TryRebuild runs a full build unless one is already running, in which case
// it returns apperr.ErrBuilding.
func (s *Service) TryRebuild(ctx context.Context) (*site.Report, error) {
	if !s.buildMu.TryLock() {
		return nil, apperr.ErrBuilding
	}
	defer s.buildMu.Unlock()
	return s.rebuild(ctx), nil
}

// Building reports whether a build is running.
func (s *Service) Building() bool {
	return s.building.Load()
}

func (s *Service) rebuild(ctx context.Context) *site.Report {
	s.building.Store(true)
	defer s.building.Store(false)

	rep := s.builder.Build(ctx)

	if s.catalog != nil {
		if err := syncCatalog(s.catalog, rep, s.logger); err != nil {
			s.logger.Warn("catalog sync failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	s.last = rep
	subs := make([]func(*site.Report), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(rep)
	}
	return rep
}

// LastReport returns the report of the latest build in this process.
func (s *Service) LastReport() (*site.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, apperr.ErrNotFound
	}
	return s.last, nil
}

// LatestBuild returns the catalog record of the latest build, falling back
// to the in-memory report when the catalog is disabled.
func (s *Service) LatestBuild(_ context.Context) (*catalog.BuildRow, error) {
	if s.catalog != nil {
		return s.catalog.LatestBuild()
	}
	rep, err := s.LastReport()
	if err != nil {
		return nil, err
	}
	b := buildRow(rep)
	return &b, nil
}

// ListPages returns built pages newest first, optionally restricted to tag,
// plus the total count.
func (s *Service) ListPages(_ context.Context, tag string, limit, offset int) ([]catalog.PageRow, int, error) {
	if s.catalog != nil {
		return s.catalog.ListPages(tag, limit, offset)
	}
	rows, err := s.memoryPages()
	if err != nil {
		return nil, 0, err
	}
	if tag != "" {
		filtered := rows[:0]
		for _, r := range rows {
			for _, t := range r.Tags {
				if t == tag {
					filtered = append(filtered, r)
					break
				}
			}
		}
		rows = filtered
	}
	return paginate(rows, limit, offset), len(rows), nil
}

// GetPage returns one built page by slug.
func (s *Service) GetPage(_ context.Context, slug string) (*catalog.PageRow, error) {
	if s.catalog != nil {
		return s.catalog.GetPage(slug)
	}
	rows, err := s.memoryPages()
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].Slug == slug {
			return &rows[i], nil
		}
	}
	return nil, apperr.ErrNotFound
}

// Search delegates full-text search to the catalog, or matches titles and
// bodies case-insensitively when the catalog is disabled.
func (s *Service) Search(_ context.Context, query string, limit int) ([]catalog.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []catalog.SearchResult{}, nil
	}
	if s.catalog != nil {
		return s.catalog.Search(query, limit)
	}
	rows, err := s.memoryPages()
	if errors.Is(err, apperr.ErrNotFound) {
		return []catalog.SearchResult{}, nil
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	q := strings.ToLower(query)
	out := []catalog.SearchResult{}
	for _, r := range rows {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Body), q) {
			out = append(out, catalog.SearchResult{Source: r.Source, URL: r.URL, Title: r.Title, Snippet: snippet(r.Body)})
		}
	}
	return out, nil
}

// memoryPages lists the pages of the last report in catalog order.
func (s *Service) memoryPages() ([]catalog.PageRow, error) {
	rep, err := s.LastReport()
	if err != nil {
		return nil, err
	}
	rows := pageRows(rep)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Date.IsZero() != b.Date.IsZero() {
			return !a.Date.IsZero()
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.Source < b.Source
	})
	return rows, nil
}

func paginate[T any](s []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 || offset >= len(s) {
		return []T{}
	}
	end := offset + limit
	if end > len(s) {
		end = len(s)
	}
	return s[offset:end]
}

func snippet(body string) string {
	r := []rune(body)
	if len(r) > 200 {
		return string(r[:200])
	}
	return body
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
