// Package models defines the domain types for Bread.
package models

import "time"

// Document is one authored markdown source file.
type Document struct {
	Path       string         `json:"path"` // relative to the source root, slash separated
	Slug       string         `json:"slug"`
	Title      string         `json:"title"`
	Date       time.Time      `json:"date,omitzero"`
	Tags       []string       `json:"tags,omitempty"`
	Template   string         `json:"template"`
	Meta       map[string]any `json:"meta,omitempty"`
	Markdown   string         `json:"-"`
	Body       Body           `json:"-"`
	URL        string         `json:"url"`
	OutputPath string         `json:"output_path"`
}

// Dated reports whether the document carries a date.
func (d *Document) Dated() bool {
	return !d.Date.IsZero()
}

// HasTag reports whether tag is one of the document's tags.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Node is one element of a compiled body: either a rendered Fragment or an
// unresolved *Directive.
type Node interface {
	node()
}

// Fragment is HTML that has already been rendered.
type Fragment string

func (Fragment) node() {}

// Body is the compiled content of a document in source order.
type Body []Node

// Directives returns the unresolved directives of the body in source order.
func (b Body) Directives() []*Directive {
	var out []*Directive
	for _, n := range b {
		if d, ok := n.(*Directive); ok {
			out = append(out, d)
		}
	}
	return out
}

// Resolved reports whether every directive has been replaced.
func (b Body) Resolved() bool {
	return len(b.Directives()) == 0
}

// HTML concatenates the fragments of a resolved body.
func (b Body) HTML() string {
	var n int
	for _, node := range b {
		if f, ok := node.(Fragment); ok {
			n += len(f)
		}
	}
	buf := make([]byte, 0, n)
	for _, node := range b {
		if f, ok := node.(Fragment); ok {
			buf = append(buf, f...)
		}
	}
	return string(buf)
}
