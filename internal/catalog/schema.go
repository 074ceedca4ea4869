// Package catalog records the pages and outcome of the latest build in
// SQLite, with optional FTS5 full-text search.
package catalog

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS pages (
	source   TEXT PRIMARY KEY,
	slug     TEXT NOT NULL UNIQUE,
	url      TEXT NOT NULL,
	title    TEXT NOT NULL DEFAULT '',
	date     TEXT,
	tags     TEXT NOT NULL DEFAULT '[]',
	checksum TEXT NOT NULL DEFAULT '',
	body     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_pages_date ON pages(date);

CREATE TABLE IF NOT EXISTS builds (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	outcome     TEXT NOT NULL,
	pages       INTEGER NOT NULL DEFAULT 0,
	failures    INTEGER NOT NULL DEFAULT 0,
	fatal       TEXT NOT NULL DEFAULT '',
	errors      TEXT NOT NULL DEFAULT '[]'
);
`

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
