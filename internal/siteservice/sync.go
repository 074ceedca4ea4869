package siteservice

import (
	"fmt"
	"log/slog"

	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/site"
)

// syncCatalog brings the catalog in line with a finished build:
//   - the build itself is always recorded
//   - the page set is replaced only when output was written
func syncCatalog(cat catalog.Catalog, rep *site.Report, logger *slog.Logger) error {
	if rep.Outcome != site.OutcomeFatal {
		rows := pageRows(rep)
		if err := cat.ReplacePages(rows); err != nil {
			return fmt.Errorf("siteservice: sync pages: %w", err)
		}
		logger.Debug("catalog pages replaced", slog.Int("pages", len(rows)))
	}
	id, err := cat.RecordBuild(buildRow(rep))
	if err != nil {
		return fmt.Errorf("siteservice: record build: %w", err)
	}
	logger.Debug("catalog build recorded", slog.Int64("id", id))
	return nil
}

func pageRows(rep *site.Report) []catalog.PageRow {
	rows := make([]catalog.PageRow, len(rep.Pages))
	for i, p := range rep.Pages {
		rows[i] = catalog.PageRow{
			Source:   p.Doc.Path,
			Slug:     p.Doc.Slug,
			URL:      p.Doc.URL,
			Title:    p.Doc.Title,
			Date:     p.Doc.Date,
			Tags:     nonNilSlice(p.Doc.Tags),
			Checksum: p.Checksum,
			Body:     p.Doc.Markdown,
		}
	}
	return rows
}

func buildRow(rep *site.Report) catalog.BuildRow {
	b := catalog.BuildRow{
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Outcome:    string(rep.Outcome),
		Pages:      len(rep.Pages),
		Failures:   len(rep.Failures),
		Errors:     make([]string, len(rep.Failures)),
	}
	for i, f := range rep.Failures {
		b.Errors[i] = f.Err.Error()
	}
	if rep.Fatal != nil {
		b.Fatal = rep.Fatal.Error()
	}
	return b
}
