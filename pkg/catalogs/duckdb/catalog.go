// Package duckdb provides a DuckDB catalog.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

const defaultSchema = "main"

var queries = catalog.Queries{
	ListObjects: `SELECT table_name, 'TABLE', COALESCE(comment, '')
		FROM duckdb_tables() WHERE schema_name = $1
		UNION ALL
		SELECT view_name, 'VIEW', COALESCE(comment, '')
		FROM duckdb_views() WHERE schema_name = $1 AND NOT internal
		ORDER BY 1`,
	ObjectKind: `SELECT table_type
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_name = $2`,
	Columns: `SELECT column_name, data_type, is_nullable, ''
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`,
	SchemaArgs: true,
	Definition: func(schema, name string) (string, []any) {
		return `SELECT sql FROM duckdb_views()
			WHERE schema_name = $1 AND view_name = $2 AND NOT internal`, []any{schema, name}
	},
	DefinitionColumn: 0,
}

// Catalog implements catalog.Conn for DuckDB.
type Catalog struct {
	catalog.BaseSQL
}

var _ catalog.Conn = (*Catalog)(nil)

// New creates a new DuckDB catalog instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		BaseSQL: catalog.BaseSQL{Logger: logger, Queries: queries},
	}
}

// Connect opens the DuckDB database at cfg.Path.
// Use ":memory:" as the path for an in-memory database.
// Options are applied as session settings (e.g. memory_limit).
func (c *Catalog) Connect(ctx context.Context, cfg catalog.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	c.Logger.Debug("opening duckdb catalog", slog.String("path", path))

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return catalog.Unreachable("connect", fmt.Errorf("failed to ping duckdb: %w", err))
	}

	if err := applySettings(ctx, db, cfg.Options); err != nil {
		_ = db.Close()
		return err
	}

	c.DB = db
	c.Cfg = cfg
	c.Schema = cfg.Schema
	if c.Schema == "" {
		c.Schema = defaultSchema
	}
	return nil
}

func applySettings(ctx context.Context, db *sql.DB, settings map[string]string) error {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		stmt := settingStatement(k, settings[k])
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply duckdb setting %s: %w", k, err)
		}
	}
	return nil
}

func settingStatement(key, value string) string {
	return fmt.Sprintf("SET %s = '%s'", key, strings.ReplaceAll(value, "'", "''"))
}
