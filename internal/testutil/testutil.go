// Package testutil provides shared test helpers for source trees and
// catalogs.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/storage"
)

// TestCatalog creates a temporary SQLite catalog that is automatically
// cleaned up.
func TestCatalog(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "bread-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestSource creates a temporary source tree holding files (slash-separated
// relative path → content) and returns its root and provider.
func TestSource(t *testing.T, files map[string]string) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	WriteTree(t, dir, files)
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// WriteTree writes files under dir, creating parent directories.
func WriteTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// ReadTree returns every regular file under dir keyed by slash-separated
// relative path.
func ReadTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}
