// Package apperr defines the build error taxonomy.
//
// Document-level errors (ParseError, DirectiveSyntaxError,
// UnknownDirectiveError, RenderError) exclude a single page from the build.
// Fatal errors (DiscoveryError, DuplicateSlugError, PathCollisionError,
// TemplateError, WriteError) abort it.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrBuilding = errors.New("build already in progress")
)

// DiscoveryError reports an unusable source root.
type DiscoveryError struct {
	Root string
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery: %s: %v", e.Root, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// ParseError reports invalid or missing frontmatter.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DirectiveSyntaxError reports a malformed directive.
type DirectiveSyntaxError struct {
	Path   string
	Line   int
	Reason string
}

func (e *DirectiveSyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: directive syntax: %s", e.Path, e.Line, e.Reason)
}

// UnknownDirectiveError reports a directive name the resolver cannot expand.
type UnknownDirectiveError struct {
	Name string
	Path string
	Line int
}

func (e *UnknownDirectiveError) Error() string {
	return fmt.Sprintf("%s:%d: unknown directive %q", e.Path, e.Line, e.Name)
}

// RenderError reports a page that could not be put through its template.
type RenderError struct {
	Path     string
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s with template %q: %v", e.Path, e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DuplicateSlugError reports two or more documents claiming one slug.
type DuplicateSlugError struct {
	Slug  string
	Paths []string
}

func (e *DuplicateSlugError) Error() string {
	return fmt.Sprintf("duplicate slug %q: %s", e.Slug, strings.Join(e.Paths, ", "))
}

// PathCollisionError reports two sources mapping to one output file.
type PathCollisionError struct {
	Dest    string
	Sources []string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("output %s claimed by %s", e.Dest, strings.Join(e.Sources, ", "))
}

// TemplateError reports a template file that does not parse.
type TemplateError struct {
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error { return e.Err }

// WriteError reports an I/O failure while emitting output.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsFatal reports whether err invalidates the whole build.
func IsFatal(err error) bool {
	var (
		discovery *DiscoveryError
		dup       *DuplicateSlugError
		collision *PathCollisionError
		tmpl      *TemplateError
		write     *WriteError
	)
	return errors.As(err, &discovery) ||
		errors.As(err, &dup) ||
		errors.As(err, &collision) ||
		errors.As(err, &tmpl) ||
		errors.As(err, &write)
}

// Source returns the source path an error names, or "" if it names none.
func Source(err error) string {
	var (
		parse   *ParseError
		syntax  *DirectiveSyntaxError
		unknown *UnknownDirectiveError
		render  *RenderError
	)
	switch {
	case errors.As(err, &parse):
		return parse.Path
	case errors.As(err, &syntax):
		return syntax.Path
	case errors.As(err, &unknown):
		return unknown.Path
	case errors.As(err, &render):
		return render.Path
	}
	return ""
}
