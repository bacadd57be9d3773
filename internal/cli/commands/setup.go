package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/cli/config"
	"github.com/leapstack-labs/viewgraph/internal/cli/output"
	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/export"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer

	// ConnectionName and Connection describe the selected catalog.
	ConnectionName string
	Connection     catalog.Config

	// Conn is the live catalog. Catalog is what lookups go through: Conn
	// itself, or Cache wrapping it when caching is enabled.
	Conn    catalog.Conn
	Cache   *catalog.Cached
	Catalog catalog.Catalog
	Builder *lineage.Builder
}

// NewCommandContext opens the selected catalog and builds the lineage
// engine over it. The returned cleanup function closes the connection.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, func(), error) {
	cc := NewCommandContextWithoutCatalog(cmd)

	name, _ := cmd.Flags().GetString("connection")
	conn, resolved, err := cc.Cfg.CatalogConfig(name)
	if err != nil {
		return nil, nil, err
	}
	cc.ConnectionName = resolved
	cc.Connection = conn

	cat, err := catalog.Open(cmd.Context(), conn, cc.Logger.With(slog.String("connection", resolved)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open connection %s: %w", resolved, err)
	}
	cc.Conn = cat
	cc.Catalog = cat

	if cc.Cfg.Cache.TTL > 0 {
		cc.Cache = catalog.NewCached(cat, cc.Cfg.Cache.Size, cc.Cfg.Cache.TTL)
		cc.Catalog = cc.Cache
	}
	cc.Builder = lineage.NewBuilder(cc.Catalog, lineage.WithLogger(cc.Logger))

	cleanup := func() {
		_ = cat.Close()
	}
	return cc, cleanup, nil
}

// NewCommandContextWithoutCatalog creates a CommandContext without opening a
// connection. Useful for commands that only read configuration.
func NewCommandContextWithoutCatalog(cmd *cobra.Command) *CommandContext {
	cfg := config.FromContext(cmd.Context())
	logger := config.GetLogger(cmd.Context())
	mode, err := output.ParseMode(cfg.OutputFormat)
	if err != nil {
		mode = output.ModeAuto
	}
	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode),
	}
}

// JSON reports whether results should be printed as JSON.
func (cc *CommandContext) JSON() bool {
	return cc.Renderer.EffectiveMode() == output.ModeJSON
}

// NewDiffer returns a snapshot differ over the live catalog. Snapshots never
// read through the lookup cache.
func (cc *CommandContext) NewDiffer() *snapshot.Differ {
	return snapshot.NewDiffer(cc.Conn, snapshot.WithLogger(cc.Logger))
}

// NewExporter returns an exporter using the configured Graphviz binary.
func (cc *CommandContext) NewExporter() *export.Exporter {
	return export.New(cc.Builder,
		export.WithLogger(cc.Logger),
		export.WithImageRenderer(&export.GraphvizRenderer{Path: cc.Cfg.Graphviz.Path}))
}

// OpenStore opens and migrates the snapshot store at the configured path.
func (cc *CommandContext) OpenStore() (*state.SQLiteStore, error) {
	store, err := state.OpenMigrated(cc.Cfg.StatePath, cc.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store %s: %w", cc.Cfg.StatePath, err)
	}
	return store, nil
}

// notFoundHint turns a missing-object error into a friendlier message.
func notFoundHint(cc *CommandContext, err error) error {
	if !catalog.IsNotFound(err) {
		return err
	}
	return fmt.Errorf("%w\nHint: run 'viewgraph objects' to list the objects in %s", err, cc.Catalog.ID())
}
