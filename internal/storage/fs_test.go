package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/starford/bread/internal/apperr"
)

func tempTree(t *testing.T, files map[string]string) *FS {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestDiscover_Classifies(t *testing.T) {
	s := tempTree(t, map[string]string{
		"index.md":            "x",
		"posts/b.md":          "x",
		"posts/a.markdown":    "x",
		"layouts/post.tmpl":   "x",
		"img/logo.png":        "x",
		"css/site.css":        "x",
		".hidden.md":          "x",
		".git/config":         "x",
		"posts/.draft/old.md": "x",
	})

	m, err := s.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if want := []string{"index.md", "posts/a.markdown", "posts/b.md"}; !reflect.DeepEqual(m.Content, want) {
		t.Errorf("content = %v, want %v", m.Content, want)
	}
	if want := []string{"layouts/post.tmpl"}; !reflect.DeepEqual(m.Templates, want) {
		t.Errorf("templates = %v, want %v", m.Templates, want)
	}
	if want := []string{"css/site.css", "img/logo.png"}; !reflect.DeepEqual(m.Assets, want) {
		t.Errorf("assets = %v, want %v", m.Assets, want)
	}
}

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"a.md":        KindContent,
		"a.MD":        KindContent,
		"a.markdown":  KindContent,
		"base.tmpl":   KindTemplate,
		"base.gohtml": KindTemplate,
		"page.html":   KindAsset,
		"README":      KindAsset,
	}
	for name, want := range cases {
		if got := Classify(name); got != want {
			t.Errorf("Classify(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestWriteAndRead(t *testing.T) {
	s := tempTree(t, nil)
	content := []byte("<h1>Hello</h1>")
	if err := s.Write("a/b/page.html", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("a/b/page.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempTree(t, nil)
	_ = s.Write("page.html", []byte("original"))
	if err := s.Write("page.html", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("page.html")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.Root(), TempPattern))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempTree(t, nil)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	var de *apperr.DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DiscoveryError", err)
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewFS(f)
	var de *apperr.DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DiscoveryError", err)
	}
}
