// Package resolver expands directives into HTML fragments using the
// SiteIndex. It is the second phase of a build: every document has been
// parsed and indexed before any directive is resolved.
package resolver

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/index"
	"github.com/starford/bread/internal/models"
	"github.com/starford/bread/internal/parser"
)

// DefaultDateFormat is used when Options.DateFormat is empty.
const DefaultDateFormat = "2006-01-02"

// Options tunes the rendered fragments.
type Options struct {
	DateFormat string
}

// Resolver expands directives. It only reads the index, so one Resolver
// may serve many goroutines.
type Resolver struct {
	idx  *index.SiteIndex
	opts Options
}

// New returns a Resolver over idx. idx may be nil when only Check is used.
func New(idx *index.SiteIndex, opts Options) *Resolver {
	if opts.DateFormat == "" {
		opts.DateFormat = DefaultDateFormat
	}
	return &Resolver{idx: idx, opts: opts}
}

// Check validates every directive of doc without consulting the index.
func Check(doc *models.Document) error {
	for _, d := range doc.Body.Directives() {
		if _, err := planFor(d); err != nil {
			return err
		}
	}
	return nil
}

// Resolve replaces every directive in doc.Body with its fragment. On error
// doc.Body is left untouched.
func (r *Resolver) Resolve(doc *models.Document) error {
	if r.idx == nil {
		return fmt.Errorf("resolver: resolve %s: no site index", doc.Path)
	}
	out := make(models.Body, len(doc.Body))
	for i, n := range doc.Body {
		d, ok := n.(*models.Directive)
		if !ok {
			out[i] = n
			continue
		}
		p, err := planFor(d)
		if err != nil {
			return err
		}
		frag, err := p.render(r)
		if err != nil {
			return &apperr.RenderError{Path: doc.Path, Template: d.Name, Err: err}
		}
		out[i] = frag
	}
	doc.Body = out
	return nil
}

// plan is a validated directive ready to render.
type plan interface {
	render(r *Resolver) (models.Fragment, error)
}

type postListPlan struct {
	tag   string
	limit int
}

type tagCloudPlan struct{}

func planFor(d *models.Directive) (plan, error) {
	switch d.Kind {
	case models.DirectivePostList:
		return postListFor(d)
	case models.DirectiveTagCloud:
		if err := allowParams(d); err != nil {
			return nil, err
		}
		return tagCloudPlan{}, nil
	case models.DirectiveUnknown:
		return nil, &apperr.UnknownDirectiveError{Name: d.Name, Path: d.Source, Line: d.Line}
	default:
		panic(fmt.Sprintf("resolver: unhandled directive kind %d", d.Kind))
	}
}

func postListFor(d *models.Directive) (plan, error) {
	if err := allowParams(d, "tag", "limit"); err != nil {
		return nil, err
	}
	p := postListPlan{}
	if raw, ok := d.Params["tag"]; ok {
		p.tag = parser.NormalizeTag(raw)
		if p.tag == "" {
			return nil, syntaxError(d, "tag must not be empty")
		}
	}
	if raw, ok := d.Params["limit"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, syntaxError(d, fmt.Sprintf("limit must be a positive integer, got %q", raw))
		}
		p.limit = n
	}
	return p, nil
}

func allowParams(d *models.Directive, allowed ...string) error {
	keys := make([]string, 0, len(d.Params))
	for k := range d.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		known := false
		for _, a := range allowed {
			if k == a {
				known = true
				break
			}
		}
		if !known {
			return syntaxError(d, fmt.Sprintf("%s does not accept parameter %q", d.Name, k))
		}
	}
	return nil
}

func syntaxError(d *models.Directive, reason string) error {
	return &apperr.DirectiveSyntaxError{Path: d.Source, Line: d.Line, Reason: reason}
}

type postEntry struct {
	Title   string
	URL     string
	Date    string
	DateISO string
	Tags    []string
	TagAttr string
}

func (p postListPlan) render(r *Resolver) (models.Fragment, error) {
	docs := r.idx.Posts(p.tag, p.limit)
	entries := make([]postEntry, len(docs))
	for i, d := range docs {
		entries[i] = postEntry{
			Title:   d.Title,
			URL:     d.URL,
			Date:    d.Date.Format(r.opts.DateFormat),
			DateISO: d.Date.Format("2006-01-02"),
			Tags:    d.Tags,
			TagAttr: strings.Join(d.Tags, " "),
		}
	}
	return execute(postListTmpl, entries)
}

func (tagCloudPlan) render(r *Resolver) (models.Fragment, error) {
	return execute(tagCloudTmpl, r.idx.Tags())
}

func execute(t *template.Template, data any) (models.Fragment, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return models.Fragment(buf.String()), nil
}
