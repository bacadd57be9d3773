package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/viewgraph/internal/server"
	"github.com/leapstack-labs/viewgraph/internal/watch"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Addr       string
	Watch      bool
	NoSnapshot bool
	Schedule   string
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lineage API over HTTP",
		Long: `Start an HTTP server exposing object lookup, dependency trees, exports and
snapshot drift as JSON, plus Prometheus metrics at /metrics.

Snapshots are taken on the configured schedule while the server runs; drift
resets the lineage cache and is pushed to clients of /api/events. With --watch
a file-backed catalog (sqlite, duckdb) also resets the cache when written.`,
		Example: `  viewgraph serve
  viewgraph serve --addr 127.0.0.1:9000 --schedule "@every 5m"
  viewgraph serve -c local --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "Listen address (default: server.addr from config)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Reset the cache when a file-backed catalog changes")
	cmd.Flags().BoolVar(&opts.NoSnapshot, "no-snapshot", false, "Disable scheduled snapshots")
	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "Snapshot schedule (default: snapshot.schedule from config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// --addr is mapped onto server.addr by the config loader.
	addr := cc.Cfg.Server.Addr
	watchFile := cc.Cfg.Server.Watch || opts.Watch
	schedule := opts.Schedule
	if schedule == "" {
		schedule = cc.Cfg.Snapshot.Schedule
	}
	if !opts.NoSnapshot {
		if err := watch.ValidateSchedule(schedule); err != nil {
			return err
		}
	}

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	watchPath := ""
	if watchFile {
		if cc.Connection.Path == "" {
			return fmt.Errorf("--watch needs a file-backed connection; %s has no path", cc.ConnectionName)
		}
		watchPath = cc.Connection.Path
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	differ := cc.NewDiffer()
	srv := server.New(server.Config{
		Builder:   cc.Builder,
		Exporter:  cc.NewExporter(),
		Cache:     cc.Cache,
		Differ:    differ,
		Store:     store,
		Addr:      addr,
		WatchPath: watchPath,
		Registry:  reg,
		Logger:    cc.Logger,
	})

	cc.Renderer.Println(fmt.Sprintf("Serving %s on http://%s", cc.Catalog.ID(), displayAddr(addr)))
	cc.Renderer.Println(cc.Renderer.Muted("Press Ctrl+C to stop"))

	eg, ctx := errgroup.WithContext(cmd.Context())
	eg.Go(func() error {
		return srv.Serve(ctx)
	})
	if !opts.NoSnapshot {
		w := watch.New(differ, store,
			watch.WithKeep(cc.Cfg.Snapshot.Keep),
			watch.WithLogger(cc.Logger.With(slog.String("component", "snapshots"))),
			watch.OnChange(srv.PublishDrift))
		eg.Go(func() error {
			return w.Run(ctx, schedule)
		})
	}
	return eg.Wait()
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
