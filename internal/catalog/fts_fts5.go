//go:build sqlite_fts5

package catalog

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
			source UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsReset(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM pages_fts`); err != nil {
		return fmt.Errorf("catalog: clear fts: %w", err)
	}
	return nil
}

func ftsInsert(tx *sql.Tx, p PageRow) error {
	_, err := tx.Exec(`INSERT INTO pages_fts (source, title, body, tags) VALUES (?, ?, ?, ?)`,
		p.Source, p.Title, p.Body, strings.Join(p.Tags, " "))
	if err != nil {
		return fmt.Errorf("catalog: insert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching pages with
// snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.source,
		       p.url,
		       p.title,
		       snippet(pages_fts, 2, '<b>', '</b>', '...', 64)
		FROM pages_fts f
		JOIN pages p ON p.source = f.source
		WHERE pages_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
