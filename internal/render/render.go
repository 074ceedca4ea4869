// Package render applies page templates to resolved documents.
package render

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/models"
)

// BaseTemplate is the template used when a document names none.
const BaseTemplate = "base"

// Generator is reported to templates as .Site.Generator.
const Generator = "bread"

//go:embed default.html
var defaultBase string

// Extensions lists the file extensions recognised as page templates.
var Extensions = []string{".html", ".tmpl", ".gohtml"}

// SiteInfo is the site-wide data every page can read.
type SiteInfo struct {
	Title      string
	Generator  string
	DateFormat string
}

// Page is the data a template is executed with.
type Page struct {
	Title    string
	Body     template.HTML
	Tags     template.HTML
	Keywords string
	Date     string
	DateISO  string
	Slug     string
	URL      string
	Path     string
	Meta     map[string]any
	Site     SiteInfo
}

// Templates is a read-only set of named page templates.
type Templates struct {
	byName map[string]*template.Template
	files  map[string]string
}

// Glob returns the template files under dir, sorted. A missing dir yields
// no files.
func Glob(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsTemplate(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("render: glob %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// IsTemplate reports whether name has a template extension.
func IsTemplate(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Name returns the template name for a file: its base name without
// extension.
func Name(file string) string {
	base := filepath.Base(file)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load parses every file into its own template. A file that does not parse,
// or two files sharing a name, is a TemplateError. The embedded default is
// registered as "base" unless a file provides one.
func Load(files ...string) (*Templates, error) {
	t := &Templates{
		byName: make(map[string]*template.Template, len(files)+1),
		files:  make(map[string]string, len(files)),
	}
	for _, f := range files {
		name := Name(f)
		if prev, dup := t.files[name]; dup {
			return nil, &apperr.TemplateError{Path: f, Err: fmt.Errorf("template %q already defined by %s", name, prev)}
		}
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, &apperr.TemplateError{Path: f, Err: err}
		}
		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, &apperr.TemplateError{Path: f, Err: err}
		}
		t.byName[name] = tmpl
		t.files[name] = f
	}
	if _, ok := t.byName[BaseTemplate]; !ok {
		t.byName[BaseTemplate] = template.Must(template.New(BaseTemplate).Parse(defaultBase))
	}
	return t, nil
}

// Has reports whether a template called name exists.
func (t *Templates) Has(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Names returns the template names, sorted.
func (t *Templates) Names() []string {
	names := make([]string, 0, len(t.byName))
	for n := range t.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply renders doc, whose body must be fully resolved, with the template it
// names.
func (t *Templates) Apply(doc *models.Document, site SiteInfo) ([]byte, error) {
	name := doc.Template
	if name == "" {
		name = BaseTemplate
	}
	fail := func(err error) ([]byte, error) {
		return nil, &apperr.RenderError{Path: doc.Path, Template: name, Err: err}
	}
	if !doc.Body.Resolved() {
		return fail(errors.New("body has unresolved directives"))
	}
	tmpl, ok := t.byName[name]
	if !ok {
		return fail(fmt.Errorf("template %q: %w", name, apperr.ErrNotFound))
	}

	page, err := NewPage(doc, site)
	if err != nil {
		return fail(err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return fail(err)
	}
	return buf.Bytes(), nil
}

// NewPage fills the template slots for doc.
func NewPage(doc *models.Document, site SiteInfo) (Page, error) {
	if site.Generator == "" {
		site.Generator = Generator
	}
	p := Page{
		Title:    doc.Title,
		Body:     template.HTML(doc.Body.HTML()),
		Keywords: strings.Join(doc.Tags, ", "),
		Slug:     doc.Slug,
		URL:      doc.URL,
		Path:     doc.Path,
		Meta:     doc.Meta,
		Site:     site,
	}
	if doc.Dated() {
		format := site.DateFormat
		if format == "" {
			format = "2006-01-02"
		}
		p.Date = doc.Date.Format(format)
		p.DateISO = doc.Date.Format("2006-01-02")
	}
	if len(doc.Tags) > 0 {
		var buf bytes.Buffer
		if err := badgesTmpl.Execute(&buf, doc.Tags); err != nil {
			return Page{}, err
		}
		p.Tags = template.HTML(buf.String())
	}
	return p, nil
}

var badgesTmpl = template.Must(template.New("badges").Parse(
	`{{ range . }}<span class="tag" data-tag="{{ . }}" role="button" tabindex="0">#{{ . }}</span>{{ end }}`))
