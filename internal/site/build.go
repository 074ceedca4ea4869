// Package site runs a full build: discovery, parallel parsing and
// compilation, the index barrier, parallel resolution and templating, and
// finally the output writes.
package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/bread/internal/apperr"
	"github.com/starford/bread/internal/checksum"
	"github.com/starford/bread/internal/compiler"
	"github.com/starford/bread/internal/index"
	"github.com/starford/bread/internal/metrics"
	"github.com/starford/bread/internal/models"
	"github.com/starford/bread/internal/output"
	"github.com/starford/bread/internal/parser"
	"github.com/starford/bread/internal/render"
	"github.com/starford/bread/internal/resolver"
	"github.com/starford/bread/internal/storage"
)

// Config describes one site.
type Config struct {
	Title      string
	Source     string
	Templates  string // optional
	Static     string // optional, copied into the output root
	Output     string
	Workers    int // <= 0 means GOMAXPROCS
	DateFormat string
	SafeMode   bool
}

// Option customises a Builder.
type Option func(*Builder)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Builder) { b.recorder = r }
}

// Builder builds a site. Builds are independent; a Builder keeps no state
// between them.
type Builder struct {
	cfg      Config
	logger   *slog.Logger
	recorder metrics.Recorder
}

// New returns a Builder for cfg.
func New(cfg Config, opts ...Option) *Builder {
	b := &Builder{cfg: cfg, logger: slog.Default(), recorder: metrics.NoopRecorder{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build is shorthand for New(cfg, opts...).Build(ctx).
func Build(ctx context.Context, cfg Config, opts ...Option) *Report {
	return New(cfg, opts...).Build(ctx)
}

func (b *Builder) workers() int {
	if b.cfg.Workers > 0 {
		return b.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Build runs the pipeline and always returns a report. Nothing is written
// unless every surviving page rendered.
func (b *Builder) Build(ctx context.Context) *Report {
	rep := &Report{StartedAt: time.Now()}
	err := b.run(ctx, rep)
	rep.FinishedAt = time.Now()

	switch {
	case err != nil:
		rep.Outcome = OutcomeFatal
		rep.Fatal = err
		b.logger.Error("build failed", slog.String("error", err.Error()))
	case len(rep.Failures) > 0:
		rep.Outcome = OutcomePartial
	default:
		rep.Outcome = OutcomeSuccess
	}
	for _, f := range rep.Failures {
		b.logger.Warn("document excluded", slog.String("path", f.Path), slog.String("error", f.Err.Error()))
	}

	b.recorder.ObserveBuildDuration(rep.Duration())
	b.recorder.IncBuildOutcome(string(rep.Outcome))
	b.recorder.AddDocuments(metrics.DocumentBuilt, len(rep.Pages))
	b.recorder.AddDocuments(metrics.DocumentFailed, len(rep.Failures))

	b.logger.Info("build finished",
		slog.String("outcome", string(rep.Outcome)),
		slog.Int("pages", len(rep.Pages)),
		slog.Int("assets", rep.Assets),
		slog.Int("failures", len(rep.Failures)),
		slog.Duration("duration", rep.Duration()))
	return rep
}

func (b *Builder) run(ctx context.Context, rep *Report) error {
	timer := b.phase(metrics.PhaseDiscover)
	src, err := storage.NewFS(b.cfg.Source)
	if err != nil {
		return err
	}
	manifest, err := src.Discover()
	if err != nil {
		return err
	}
	tmpls, err := b.loadTemplates(src, manifest)
	if err != nil {
		return err
	}
	rep.Discovered = len(manifest.Content)
	timer()

	timer = b.phase(metrics.PhaseCompile)
	docs, failures, err := b.load(ctx, src, manifest.Content, tmpls)
	if err != nil {
		return err
	}
	rep.Failures = failures
	timer()

	timer = b.phase(metrics.PhaseIndex)
	idx, err := index.Build(docs, manifest.Assets)
	if err != nil {
		return err
	}
	timer()

	timer = b.phase(metrics.PhaseResolve)
	pages, failures, err := b.render(ctx, idx, tmpls)
	if err != nil {
		return err
	}
	rep.Failures = sortFailures(append(rep.Failures, failures...))
	timer()

	timer = b.phase(metrics.PhaseWrite)
	written, err := b.write(ctx, src, pages, manifest.Assets)
	if err != nil {
		return err
	}
	timer()

	for _, p := range pages {
		rep.Pages = append(rep.Pages, Page{Doc: p.doc, Checksum: checksum.Sum(p.html)})
	}
	rep.Assets = len(manifest.Assets)
	rep.Written = written
	return nil
}

func (b *Builder) phase(p metrics.Phase) func() {
	start := time.Now()
	return func() {
		d := time.Since(start)
		b.recorder.ObservePhaseDuration(p, d)
		b.logger.Debug("phase done", slog.String("phase", string(p)), slog.Duration("duration", d))
	}
}

func (b *Builder) loadTemplates(src *storage.FS, m *storage.Manifest) (*render.Templates, error) {
	files, err := render.Glob(b.cfg.Templates)
	if err != nil {
		return nil, &apperr.TemplateError{Path: b.cfg.Templates, Err: err}
	}
	for _, rel := range m.Templates {
		files = append(files, filepath.Join(src.Root(), filepath.FromSlash(rel)))
	}
	return render.Load(files...)
}

// load runs phase one. Every document is parsed, compiled and checked on
// its own; results land in slots by position so order does not depend on
// scheduling.
func (b *Builder) load(ctx context.Context, src *storage.FS, paths []string, tmpls *render.Templates) ([]*models.Document, []Failure, error) {
	comp := compiler.New(compiler.Options{SafeMode: b.cfg.SafeMode})
	docs := make([]*models.Document, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(b.workers())
	for i, rel := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs[i], errs[i] = loadDocument(src, comp, tmpls, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("site: load: %w", err)
	}

	var (
		ok       []*models.Document
		failures []Failure
	)
	for i, err := range errs {
		if err != nil {
			failures = append(failures, Failure{Path: paths[i], Err: err})
			continue
		}
		ok = append(ok, docs[i])
	}
	return ok, failures, nil
}

func loadDocument(src storage.Provider, comp *compiler.Compiler, tmpls *render.Templates, rel string) (*models.Document, error) {
	data, err := src.Read(rel)
	if err != nil {
		return nil, &apperr.ParseError{Path: rel, Reason: "read failed", Err: err}
	}
	res, err := parser.Parse(rel, data)
	if err != nil {
		return nil, err
	}
	body, err := comp.Compile(rel, res.Body, res.BodyLine)
	if err != nil {
		return nil, err
	}

	out := res.Slug + ".html"
	if dir := path.Dir(rel); dir != "." {
		out = dir + "/" + out
	}
	doc := &models.Document{
		Path:       rel,
		Slug:       res.Slug,
		Title:      res.Title,
		Date:       res.Date,
		Tags:       res.Tags,
		Template:   res.Template,
		Meta:       res.Meta,
		Markdown:   string(res.Body),
		Body:       body,
		URL:        "/" + out,
		OutputPath: out,
	}
	if err := resolver.Check(doc); err != nil {
		return nil, err
	}
	if !tmpls.Has(doc.Template) {
		return nil, &apperr.RenderError{
			Path:     rel,
			Template: doc.Template,
			Err:      fmt.Errorf("template %q: %w", doc.Template, apperr.ErrNotFound),
		}
	}
	return doc, nil
}

type rendered struct {
	doc  *models.Document
	html []byte
}

// render runs phase two against the finished index.
func (b *Builder) render(ctx context.Context, idx *index.SiteIndex, tmpls *render.Templates) ([]rendered, []Failure, error) {
	res := resolver.New(idx, resolver.Options{DateFormat: b.cfg.DateFormat})
	site := render.SiteInfo{Title: b.cfg.Title, DateFormat: b.cfg.DateFormat}
	docs := idx.Documents()
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })

	out := make([][]byte, len(docs))
	errs := make([]error, len(docs))

	var g errgroup.Group
	g.SetLimit(b.workers())
	for i, doc := range docs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := res.Resolve(doc); err != nil {
				errs[i] = err
				return nil
			}
			out[i], errs[i] = tmpls.Apply(doc, site)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("site: render: %w", err)
	}

	var (
		pages    []rendered
		failures []Failure
	)
	for i, doc := range docs {
		if errs[i] != nil {
			failures = append(failures, Failure{Path: doc.Path, Err: errs[i]})
			continue
		}
		pages = append(pages, rendered{doc: doc, html: out[i]})
	}
	return pages, failures, nil
}

// write emits the static directory, then every page and asset. The first
// failure cancels the remaining writes.
func (b *Builder) write(ctx context.Context, src *storage.FS, pages []rendered, assets []string) ([]string, error) {
	w, err := output.New(b.cfg.Output)
	if err != nil {
		return nil, err
	}
	static, err := w.CopyDir(b.cfg.Static)
	if err != nil {
		return nil, err
	}
	if len(static) > 0 {
		b.logger.Debug("static copied", slog.Int("files", len(static)))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	for _, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := w.WritePage(p.doc, p.html); err != nil {
				return err
			}
			b.logger.Debug("page written", slog.String("path", p.doc.OutputPath))
			return nil
		})
	}
	for _, rel := range assets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return w.CopyAsset(src, rel)
		})
	}
	if err := g.Wait(); err != nil {
		var we *apperr.WriteError
		if errors.As(err, &we) {
			return nil, err
		}
		return nil, fmt.Errorf("site: write: %w", err)
	}
	return w.Written(), nil
}

func sortFailures(fs []Failure) []Failure {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Path < fs[j].Path })
	return fs
}
