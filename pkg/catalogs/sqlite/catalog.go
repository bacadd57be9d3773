// Package sqlite provides a catalog over SQLite database files using the
// pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

var queries = catalog.Queries{
	ListObjects: `SELECT name, type, ''
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`,
	ObjectKind: `SELECT type
		FROM sqlite_master
		WHERE type IN ('table', 'view') AND name = ?`,
	Columns: `SELECT name, type, CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END, ''
		FROM pragma_table_info(?)
		ORDER BY cid`,
	Definition: func(_, name string) (string, []any) {
		return `SELECT sql FROM sqlite_master WHERE type = 'view' AND name = ?`, []any{name}
	},
	DefinitionColumn: 0,
}

// Catalog implements catalog.Conn for SQLite.
type Catalog struct {
	catalog.BaseSQL
}

var _ catalog.Conn = (*Catalog)(nil)

// New creates a new SQLite catalog instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		BaseSQL: catalog.BaseSQL{Logger: logger, Queries: queries},
	}
}

// Connect opens the database file at cfg.Path in read-only mode.
// Use ":memory:" for an in-memory database.
func (c *Catalog) Connect(ctx context.Context, cfg catalog.Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?mode=ro"
	}

	c.Logger.Debug("opening sqlite catalog", slog.String("path", path))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases stable across queries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return catalog.Unreachable("connect", fmt.Errorf("failed to ping sqlite: %w", err))
	}

	c.DB = db
	c.Cfg = cfg
	c.Schema = "main"
	return nil
}
