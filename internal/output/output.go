// Package output emits rendered pages and copied assets under the output
// root.
package output

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/models"
	"github.com/starford/bread/internal/storage"
)

// Writer writes into one output root. It is safe for concurrent use.
type Writer struct {
	fs *storage.FS

	mu      sync.Mutex
	written map[string]struct{}
}

// New creates the output root if needed and returns a Writer for it.
func New(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &apperr.WriteError{Path: root, Err: err}
	}
	fsys, err := storage.NewFS(root)
	if err != nil {
		return nil, &apperr.WriteError{Path: root, Err: err}
	}
	return &Writer{fs: fsys, written: make(map[string]struct{})}, nil
}

// Root returns the absolute output root.
func (w *Writer) Root() string {
	return w.fs.Root()
}

// WritePage writes the rendered page of doc to its output path.
func (w *Writer) WritePage(doc *models.Document, content []byte) error {
	if err := w.fs.Write(doc.OutputPath, content); err != nil {
		return &apperr.WriteError{Path: doc.OutputPath, Err: err}
	}
	w.record(doc.OutputPath)
	return nil
}

// CopyAsset copies rel from src to the same relative path under the root.
func (w *Writer) CopyAsset(src storage.Provider, rel string) error {
	r, err := src.Open(rel)
	if err != nil {
		return &apperr.WriteError{Path: rel, Err: err}
	}
	defer r.Close()
	if err := w.fs.WriteFrom(rel, r); err != nil {
		return &apperr.WriteError{Path: rel, Err: err}
	}
	w.record(rel)
	return nil
}

// CopyDir copies every regular file under dir into the output root,
// keeping relative paths. Dot entries are skipped. A missing dir is not an
// error.
func (w *Writer) CopyDir(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	src, err := storage.NewFS(dir)
	if err != nil {
		var de *apperr.DiscoveryError
		if errors.As(err, &de) && errors.Is(de.Err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &apperr.WriteError{Path: dir, Err: err}
	}
	var files []string
	err = filepath.WalkDir(src.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == src.Root() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src.Root(), p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &apperr.WriteError{Path: dir, Err: fmt.Errorf("walk: %w", err)}
	}
	sort.Strings(files)
	for _, rel := range files {
		if err := w.CopyAsset(src, rel); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func (w *Writer) record(rel string) {
	w.mu.Lock()
	w.written[rel] = struct{}{}
	w.mu.Unlock()
}

// Written returns every destination written so far, sorted.
func (w *Writer) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.written))
	for rel := range w.written {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}
