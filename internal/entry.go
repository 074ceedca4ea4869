// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/bread/internal/api"
	"github.com/starford/bread/internal/catalog"
	"github.com/starford/bread/internal/mcpserver"
	"github.com/starford/bread/internal/metrics"
	"github.com/starford/bread/internal/site"
	"github.com/starford/bread/internal/siteservice"
	"github.com/starford/bread/internal/sse"
	"github.com/starford/bread/internal/watch"
)

// deps is what every command shares: a logger and a build service backed
// by the optional catalog.
type deps struct {
	cfg    *Config
	logger *slog.Logger
	svc    *siteservice.Service
	close  func()
}

func setup(opts []Option, defaultLog io.Writer, siteOpts ...site.Option) (*application, *deps, error) {
	app := &application{version: "dev", logOutput: defaultLog}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Site.Source),
		slog.String("output", cfg.Site.Output),
		slog.String("catalog_path", cfg.Catalog.Path),
		slog.Int("workers", cfg.Site.Workers),
		slog.String("log_level", cfg.App.LogLevel.String()))

	rt := &deps{cfg: cfg, logger: logger, close: func() {}}

	var cat catalog.Catalog
	if cfg.Catalog.Enabled() {
		db, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init catalog: %w", err)
		}
		cat = db
		rt.close = func() { _ = db.Close() }
	}

	builder := site.New(cfg.Site.Builder(), append([]site.Option{site.WithLogger(logger)}, siteOpts...)...)
	rt.svc = siteservice.New(builder, cat, logger)
	return app, rt, nil
}

// Build runs one full build and returns its report. The error is the fatal
// error of the build, if any.
func Build(ctx context.Context, opts ...Option) (*site.Report, error) {
	_, rt, err := setup(opts, os.Stdout)
	if err != nil {
		return nil, err
	}
	defer rt.close()

	rep := rt.svc.Rebuild(ctx)
	return rep, rep.Err()
}

// RunMCP serves the MCP tools on stdin/stdout until the client disconnects.
func RunMCP(_ context.Context, opts ...Option) error {
	app, rt, err := setup(opts, os.Stderr)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.logger.Info("MCP server starting", slog.String("version", app.version))
	return mcpserver.New(rt.svc, app.version).ServeStdio()
}

// Run starts the dev server: an initial build, a watcher that rebuilds on
// change, the built site, the JSON API and build events over SSE.
func Run(ctx context.Context, opts ...Option) error {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(reg)

	_, rt, err := setup(opts, os.Stdout, site.WithRecorder(recorder))
	if err != nil {
		return err
	}
	defer rt.close()

	cfg, logger, svc := rt.cfg, rt.logger, rt.svc

	// SSE broker.
	broker := sse.NewBroker(500 * time.Millisecond)
	defer broker.Close()

	svc.Subscribe(func(rep *site.Report) {
		ev := sse.BuildEvent{
			Outcome:    string(rep.Outcome),
			Pages:      len(rep.Pages),
			Failures:   len(rep.Failures),
			DurationMS: rep.Duration().Milliseconds(),
		}
		if rep.Fatal != nil {
			ev.Fatal = rep.Fatal.Error()
		}
		broker.PublishBuild(ev)
	})

	// Initial build. A failing build still starts the server so the author
	// can fix the source while watching.
	svc.Rebuild(ctx)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := svc.LastReport(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"building"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/metrics", metrics.HTTPHandler(reg))

	// Mount API routes under /api, build events at /api/events.
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	// Everything else is the built site.
	r.Handle("/*", api.SiteHandler(cfg.Site.Output))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Rebuild whenever the inputs settle.
	g.Go(func() error {
		roots := []string{cfg.Site.Source}
		for _, dir := range []string{cfg.Site.Templates, cfg.Site.Static} {
			if dir != "" {
				roots = append(roots, dir)
			}
		}
		return watch.Watch(gCtx, watch.Options{
			Roots:    roots,
			Ignore:   []string{cfg.Site.Output},
			Debounce: cfg.Watch.Debounce,
		}, logger, func(paths []string) {
			broker.Publish(sse.Event{Type: "build.started", Data: map[string]int{"changes": len(paths)}})
			svc.Rebuild(gCtx)
		})
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Event streams never end on their own.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the watcher stops with the server.
var errShutdown = errors.New("shutdown")
