package api

import (
	"context"

	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/site"
	"github.com/starford/bread/internal/siteservice"
)

// Site is what the handlers need from the build service.
type Site interface {
	TryRebuild(ctx context.Context) (*site.Report, error)
	Building() bool
	LatestBuild(ctx context.Context) (*catalog.BuildRow, error)
	ListPages(ctx context.Context, tag string, limit, offset int) ([]catalog.PageRow, int, error)
	GetPage(ctx context.Context, slug string) (*catalog.PageRow, error)
	Search(ctx context.Context, query string, limit int) ([]catalog.SearchResult, error)
}

var _ Site = (*siteservice.Service)(nil)

// PageListResponse wraps paginated page listings.
type PageListResponse struct {
	Pages []catalog.PageRow `json:"pages" validate:"required"`
	Total int               `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []catalog.SearchResult `json:"results" validate:"required"`
}

// BuildStatusResponse describes the latest recorded build.
type BuildStatusResponse struct {
	Building bool              `json:"building"`
	Latest   *catalog.BuildRow `json:"latest"`
}
