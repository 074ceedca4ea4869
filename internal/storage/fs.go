package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/bread/internal/apperr"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path of the tree
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &apperr.DiscoveryError{Root: root, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &apperr.DiscoveryError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &apperr.DiscoveryError{Root: root, Err: errors.New("not a directory")}
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string {
	return f.root
}

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// Discover walks the tree and classifies every regular file. Entries whose
// name starts with a dot are skipped, directories included.
func (f *FS) Discover() (*Manifest, error) {
	m := &Manifest{}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == f.root {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		switch Classify(rel) {
		case KindContent:
			m.Content = append(m.Content, rel)
		case KindTemplate:
			m.Templates = append(m.Templates, rel)
		default:
			m.Assets = append(m.Assets, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &apperr.DiscoveryError{Root: f.root, Err: err}
	}
	sort.Strings(m.Content)
	sort.Strings(m.Templates)
	sort.Strings(m.Assets)
	return m, nil
}

// Classify returns the kind of a source entry from its name.
func Classify(name string) Kind {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return KindContent
	case ".tmpl", ".gohtml":
		return KindTemplate
	default:
		return KindAsset
	}
}

// Read returns the raw bytes of a file.
func (f *FS) Read(rel string) ([]byte, error) {
	abs, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", rel, err)
	}
	return data, nil
}

// Open opens a file for streaming reads.
func (f *FS) Open(rel string) (io.ReadCloser, error) {
	abs, err := f.safePath(rel)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", rel, err)
	}
	return file, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(rel string, content []byte) error {
	return f.WriteFrom(rel, bytes.NewReader(content))
}

// WriteFrom atomically writes everything read from r.
func (f *FS) WriteFrom(rel string, r io.Reader) error {
	abs, err := f.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("storage: chmod: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
