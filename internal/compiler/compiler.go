// Package compiler renders markdown bodies to HTML with goldmark while
// keeping {{ directive }} placeholders as unresolved nodes.
package compiler

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/models"
)

// sentinel brackets directive indexes in the rendered HTML. NUL bytes never
// survive from the source because Compile replaces them first.
const sentinel = "\x00"

// Options tunes the markdown engine.
type Options struct {
	// SafeMode drops raw HTML from the source instead of passing it through.
	SafeMode bool
	// HardWraps renders soft line breaks as <br>.
	HardWraps bool
}

// Compiler turns markdown bodies into models.Body values. It holds no
// mutable state, so one Compiler may be shared by many goroutines.
type Compiler struct {
	opts Options
}

// New returns a Compiler.
func New(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Compile renders body, the markdown of the document at path. firstLine is
// the source-file line body starts on; it is used for error positions.
func (c *Compiler) Compile(path string, body []byte, firstLine int) (models.Body, error) {
	src := bytes.ReplaceAll(body, []byte(sentinel), []byte("\uFFFD"))
	if firstLine < 1 {
		firstLine = 1
	}
	st := &state{path: path, source: src, firstLine: firstLine}

	md := c.engine(st)
	root := md.Parser().Parse(text.NewReader(src))
	if st.err != nil {
		return nil, st.err
	}

	var buf bytes.Buffer
	if err := md.Renderer().Render(&buf, src, root); err != nil {
		return nil, fmt.Errorf("compiler: render %s: %w", path, err)
	}
	out := split(buf.String(), st.directives)
	if d := missing(out, st.directives); d != nil {
		return nil, &apperr.DirectiveSyntaxError{Path: path, Line: d.Line, Reason: "directive in a position that cannot hold generated HTML"}
	}
	return out, nil
}

// missing returns the first registered directive that did not make it into
// body, or nil.
func missing(body models.Body, directives []*models.Directive) *models.Directive {
	seen := make(map[*models.Directive]bool, len(directives))
	for _, d := range body.Directives() {
		seen[d] = true
	}
	for _, d := range directives {
		if !seen[d] {
			return d
		}
	}
	return nil
}

// engine builds a goldmark instance bound to one compilation.
func (c *Compiler) engine(st *state) goldmark.Markdown {
	rendererOptions := []renderer.Option{}
	if !c.opts.SafeMode {
		rendererOptions = append(rendererOptions, html.WithUnsafe())
	}
	if c.opts.HardWraps {
		rendererOptions = append(rendererOptions, html.WithHardWraps())
	}

	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			&directiveExtension{st: st, safe: c.opts.SafeMode},
		),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		goldmark.WithRendererOptions(rendererOptions...),
	)
}

// state collects the directives and the first syntax error of one
// compilation.
type state struct {
	path       string
	source     []byte
	firstLine  int
	directives []*models.Directive
	err        error
}

func (s *state) lineOf(offset int) int {
	if offset > len(s.source) {
		offset = len(s.source)
	}
	return s.firstLine + bytes.Count(s.source[:offset], []byte("\n"))
}

func (s *state) fail(offset int, reason string) {
	s.failLine(s.lineOf(offset), reason)
}

func (s *state) failLine(line int, reason string) {
	if s.err != nil {
		return
	}
	s.err = &apperr.DirectiveSyntaxError{Path: s.path, Line: line, Reason: reason}
}

// register parses the text between {{ and }} found at offset and records
// the directive. It reports false after recording a syntax error.
func (s *state) register(raw []byte, offset int) (int, bool) {
	d, err := parseDirective(string(raw))
	if err != nil {
		s.fail(offset, err.Error())
		return 0, false
	}
	d.Source = s.path
	d.Line = s.lineOf(offset)
	d.Kind = models.LookupDirective(d.Name)
	return s.add(d), true
}

func (s *state) add(d *models.Directive) int {
	s.directives = append(s.directives, d)
	return len(s.directives) - 1
}

// split cuts rendered HTML at the sentinels into fragments and directives.
func split(rendered string, directives []*models.Directive) models.Body {
	parts := strings.Split(rendered, sentinel)
	body := make(models.Body, 0, len(parts))
	for i, part := range parts {
		if i%2 == 0 {
			if part != "" {
				body = append(body, models.Fragment(part))
			}
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 || idx >= len(directives) {
			// Not one of ours; keep it as text.
			body = append(body, models.Fragment(part))
			continue
		}
		body = append(body, directives[idx])
	}
	return body
}

func writeSentinel(w interface{ WriteString(string) (int, error) }, idx int) {
	_, _ = w.WriteString(sentinel + strconv.Itoa(idx) + sentinel)
}
