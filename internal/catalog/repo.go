package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/bread/internal/apperr"
)

// PageRow represents a row in the pages table.
type PageRow struct {
	Source   string    `json:"source"`
	Slug     string    `json:"slug"`
	URL      string    `json:"url"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date,omitzero"`
	Tags     []string  `json:"tags"`
	Checksum string    `json:"checksum"`
	Body     string    `json:"-"`
}

// BuildRow represents a row in the builds table.
type BuildRow struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Pages      int       `json:"pages"`
	Failures   int       `json:"failures"`
	Fatal      string    `json:"fatal,omitempty"`
	Errors     []string  `json:"errors"`
}

// SearchResult represents one search hit.
type SearchResult struct {
	Source  string `json:"source"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// ReplacePages swaps the whole page set in one transaction. Every build
// recomputes the site, so the catalog never holds pages from two builds.
func (db *DB) ReplacePages(pages []PageRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM pages`); err != nil {
		return fmt.Errorf("catalog: clear pages: %w", err)
	}
	if err := ftsReset(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO pages (source, slug, url, title, date, tags, checksum, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("catalog: prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		tagsJSON, _ := json.Marshal(tags)
		if _, err := stmt.Exec(p.Source, p.Slug, p.URL, p.Title, encodeDate(p.Date), string(tagsJSON), p.Checksum, p.Body); err != nil {
			return fmt.Errorf("catalog: insert page %s: %w", p.Source, err)
		}
		if err := ftsInsert(tx, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordBuild appends a build and returns its id.
func (db *DB) RecordBuild(b BuildRow) (int64, error) {
	errs := b.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, _ := json.Marshal(errs)
	res, err := db.conn.Exec(`
		INSERT INTO builds (started_at, finished_at, outcome, pages, failures, fatal, errors)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, b.StartedAt.UTC(), b.FinishedAt.UTC(), b.Outcome, b.Pages, b.Failures, b.Fatal, string(errsJSON))
	if err != nil {
		return 0, fmt.Errorf("catalog: record build: %w", err)
	}
	return res.LastInsertId()
}

// LatestBuild returns the most recent build or apperr.ErrNotFound.
func (db *DB) LatestBuild() (*BuildRow, error) {
	var (
		b        BuildRow
		errsJSON string
	)
	err := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, outcome, pages, failures, fatal, errors
		FROM builds ORDER BY id DESC LIMIT 1
	`).Scan(&b.ID, &b.StartedAt, &b.FinishedAt, &b.Outcome, &b.Pages, &b.Failures, &b.Fatal, &errsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: latest build: %w", err)
	}
	if err := json.Unmarshal([]byte(errsJSON), &b.Errors); err != nil {
		return nil, fmt.Errorf("catalog: decode build errors: %w", err)
	}
	return &b, nil
}

const pageColumns = `source, slug, url, title, date, tags, checksum, body`

// GetPage returns the page with the given slug or apperr.ErrNotFound.
func (db *DB) GetPage(slug string) (*PageRow, error) {
	row := db.conn.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE slug = ?`, slug)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get page: %w", err)
	}
	return p, nil
}

// ListPages returns pages newest first, undated last, optionally restricted
// to a tag, plus the total number of matching pages.
func (db *DB) ListPages(tag string, limit, offset int) ([]PageRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	where := ``
	args := []any{}
	if tag != "" {
		where = `WHERE EXISTS (SELECT 1 FROM json_each(pages.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM pages `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count pages: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT `+pageColumns+` FROM pages `+where+`
		ORDER BY date IS NULL, date DESC, source
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list pages: %w", err)
	}
	defer rows.Close()

	out := []PageRow{}
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(s scanner) (*PageRow, error) {
	var (
		p        PageRow
		date     sql.NullString
		tagsJSON string
	)
	if err := s.Scan(&p.Source, &p.Slug, &p.URL, &p.Title, &date, &tagsJSON, &p.Checksum, &p.Body); err != nil {
		return nil, err
	}
	if date.Valid {
		t, err := time.Parse(time.RFC3339, date.String)
		if err != nil {
			return nil, fmt.Errorf("catalog: decode date of %s: %w", p.Source, err)
		}
		p.Date = t
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, fmt.Errorf("catalog: decode tags of %s: %w", p.Source, err)
	}
	return &p, nil
}

// encodeDate stores dates as UTC RFC 3339 so they sort lexically.
func encodeDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
