//go:build !sqlite_fts5

package catalog

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the search runs LIKE over the pages table.

func initFTS(_ *sql.DB) error { return nil }

func ftsReset(_ *sql.Tx) error { return nil }

func ftsInsert(_ *sql.Tx, _ PageRow) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT source, url, title, substr(body, 1, 200)
		FROM pages
		WHERE title LIKE ? ESCAPE '\' OR body LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\'
		ORDER BY date IS NULL, date DESC, source
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: search: %w", err)
	}
	defer rows.Close()

	out := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Source, &r.URL, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
