// Package postgres provides a PostgreSQL catalog backed by pgx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

const defaultSchema = "public"

var queries = catalog.Queries{
	ListObjects: `SELECT t.table_name,
			CASE WHEN t.table_type = 'VIEW' THEN 'VIEW' ELSE 'TABLE' END,
			COALESCE(obj_description(c.oid, 'pg_class'), '')
		FROM information_schema.tables t
		LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_catalog.pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_schema = $1
		ORDER BY t.table_name`,
	ObjectKind: `SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`,
	Columns: `SELECT col.column_name, col.data_type, col.is_nullable,
			COALESCE(col_description(c.oid, col.ordinal_position::int), '')
		FROM information_schema.columns col
		LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = col.table_schema
		LEFT JOIN pg_catalog.pg_class c ON c.relname = col.table_name AND c.relnamespace = n.oid
		WHERE col.table_schema = $1 AND col.table_name = $2
		ORDER BY col.ordinal_position`,
	SchemaArgs:       true,
	Definition:       viewDefinition,
	DefinitionColumn: 0,
}

// Catalog implements catalog.Conn for PostgreSQL.
type Catalog struct {
	catalog.BaseSQL
}

var _ catalog.Conn = (*Catalog)(nil)

// New creates a new PostgreSQL catalog instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		BaseSQL: catalog.BaseSQL{Logger: logger, Queries: queries},
	}
}

// Connect establishes a connection to PostgreSQL.
func (c *Catalog) Connect(ctx context.Context, cfg catalog.Config) error {
	dsn := buildPostgresDSN(cfg)

	c.Logger.Debug("connecting to postgres", slog.String("host", cfg.Host), slog.String("database", cfg.Database))

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return catalog.Unreachable("connect", fmt.Errorf("failed to ping postgres: %w", err))
	}

	c.DB = db
	c.Cfg = cfg
	c.Schema = cfg.Schema
	if c.Schema == "" {
		c.Schema = defaultSchema
	}
	return nil
}

// buildPostgresDSN constructs a PostgreSQL connection string.
func buildPostgresDSN(cfg catalog.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	sslmode := "disable"
	if mode, ok := cfg.Options["sslmode"]; ok {
		sslmode = mode
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s",
		host, port, cfg.Database, sslmode)

	if cfg.User != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.User)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	if cfg.Timeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(cfg.Timeout.Seconds()))
	}

	// Remaining options are passed through in a stable order.
	keys := make([]string, 0, len(cfg.Options))
	for k := range cfg.Options {
		if k != "sslmode" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		dsn += fmt.Sprintf(" %s=%s", k, cfg.Options[k])
	}

	return dsn
}

// viewDefinition returns the query for a view body. PostgreSQL stores only
// the SELECT part, so a CREATE VIEW header is prepended to match the
// "show create" shape other catalogs return.
func viewDefinition(schema, name string) (string, []any) {
	return `SELECT 'CREATE VIEW ' || quote_ident(table_name) || ' AS ' || view_definition
		FROM information_schema.views
		WHERE table_schema = $1 AND table_name = $2`, []any{schema, name}
}
