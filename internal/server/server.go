// Package server exposes the lineage engine over HTTP: object lookup, path
// scoped dependency trees, exports, drift against the last stored snapshot,
// Prometheus metrics and a server-sent event stream of catalog changes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/viewgraph/internal/server/notifier"
	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/internal/watch"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/export"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// DefaultAddr is the listen address when none is configured.
const DefaultAddr = ":8080"

// Config holds configuration for the server.
type Config struct {
	Builder  *lineage.Builder
	Exporter *export.Exporter
	// Cache is purged on refresh when the builder reads through one.
	Cache *catalog.Cached
	// Differ takes live snapshots for the delta endpoint.
	Differ *snapshot.Differ
	// Store holds previous snapshots. Optional: without it every delta is a
	// bootstrap delta.
	Store state.Store
	Addr  string
	// WatchPath is a file-backed catalog (sqlite, duckdb) to watch for
	// writes. Empty disables watching.
	WatchPath string
	Registry  *prometheus.Registry
	Logger    *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	builder   *lineage.Builder
	traverser *lineage.Traverser
	exporter  *export.Exporter
	cache     *catalog.Cached
	differ    *snapshot.Differ
	store     state.Store
	addr      string
	watchPath string
	logger    *slog.Logger
	notifier  *notifier.Notifier
	metrics   *Metrics
	router    chi.Router
}

// New creates a server instance.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	exp := cfg.Exporter
	if exp == nil {
		exp = export.New(cfg.Builder, export.WithLogger(logger))
	}
	differ := cfg.Differ
	if differ == nil {
		differ = snapshot.NewDiffer(cfg.Builder.Catalog(), snapshot.WithLogger(logger))
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		builder:   cfg.Builder,
		traverser: lineage.NewTraverser(cfg.Builder),
		exporter:  exp,
		cache:     cfg.Cache,
		differ:    differ,
		store:     cfg.Store,
		addr:      addr,
		watchPath: cfg.WatchPath,
		logger:    logger,
		notifier:  notifier.New(),
		metrics:   NewMetrics(reg, cfg.Cache),
	}
	s.router = s.routes()
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Notifier returns the server's notifier for SSE updates.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) routes() chi.Router {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		s.metrics.Middleware,
	)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/snapshots/delta", s.handleDelta)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Get("/objects", s.handleObjects)
			r.Get("/objects/{name}", s.handleObject)
			r.Get("/objects/{name}/columns", s.handleColumns)
			r.Get("/objects/{name}/dependencies", s.handleDependencies)
			r.Get("/objects/{name}/dependents", s.handleDependents)
			r.Get("/objects/{name}/export", s.handleExport)
		})
	})
	return r
}

// Refresh drops cached lookups and lineage so the next request re-reads the
// catalog, then notifies event listeners.
func (s *Server) Refresh(reason string) {
	if s.cache != nil {
		s.cache.Purge()
	}
	s.builder.Reset()
	s.metrics.RefreshesTotal.WithLabelValues(reason).Inc()
	s.logger.Info("lineage cache reset", slog.String("reason", reason))
	s.notifier.Broadcast(notifier.Event{
		Type:    notifier.EventRefresh,
		Catalog: s.differ.CatalogID(),
		Reason:  reason,
		At:      time.Now().UTC(),
	})
}

// PublishDrift records a drift result from the snapshot watcher. The
// lineage cache is reset since the catalog changed.
func (s *Server) PublishDrift(res watch.Result) {
	if !res.Delta.HasChanges {
		return
	}
	s.metrics.DriftEventsTotal.Inc()
	s.metrics.DriftChangesTotal.Add(float64(res.Delta.Changes()))
	s.metrics.LastDriftTimestamp.Set(float64(res.Delta.Timestamp.Unix()))

	if s.cache != nil {
		s.cache.Purge()
	}
	s.builder.Reset()

	delta := res.Delta
	s.notifier.Broadcast(notifier.Event{
		Type:    notifier.EventDrift,
		Catalog: res.Current.CatalogID,
		At:      res.Delta.Timestamp,
		Delta:   &delta,
	})
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting server", slog.String("addr", ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watchPath != "" {
		eg.Go(func() error {
			return s.watchCatalogFile(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// watchCatalogFile resets the lineage cache when a file-backed catalog is
// written. The directory is watched so that journal and WAL files count too.
func (s *Server) watchCatalogFile(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(s.watchPath)
	if err != nil {
		return err
	}
	dir, base := filepath.Split(abs)
	if err := watcher.Add(dir); err != nil {
		s.logger.Error("failed to watch catalog file", slog.String("path", abs), slog.String("error", err.Error()))
		// Don't fail - continue without watching
		<-ctx.Done()
		return nil
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !belongsTo(filepath.Base(event.Name), base) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				s.logger.Debug("catalog file changed", slog.String("file", event.Name))
				s.Refresh("file_change")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher error", slog.String("error", err.Error()))
		}
	}
}

// belongsTo reports whether name is the database file base or one of its
// sidecar files (-wal, -shm, -journal, .wal).
func belongsTo(name, base string) bool {
	if name == base {
		return true
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal", ".wal"} {
		if name == base+suffix {
			return true
		}
	}
	return false
}
