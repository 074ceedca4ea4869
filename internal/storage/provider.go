// Package storage walks and reads the source tree and writes files
// atomically under an output root.
package storage

import "io"

// TempPattern names the temporary files used by atomic writes.
const TempPattern = ".bread-tmp-*"

// Kind classifies a source tree entry.
type Kind int

const (
	KindAsset Kind = iota
	KindContent
	KindTemplate
)

// Manifest lists the classified entries of a source tree. Every list holds
// slash-separated relative paths in lexical order.
type Manifest struct {
	Content   []string
	Templates []string
	Assets    []string
}

// Provider is the interface for source tree operations.
type Provider interface {
	// Root returns the absolute directory the provider is rooted at.
	Root() string
	// Discover classifies every file under the root.
	Discover() (*Manifest, error)
	// Read returns the raw bytes of the file at rel.
	Read(rel string) ([]byte, error)
	// Open opens the file at rel for reading.
	Open(rel string) (io.ReadCloser, error)
}

var _ Provider = (*FS)(nil)
