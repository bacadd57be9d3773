// Package mysql provides a MySQL-protocol catalog. It also serves StarRocks,
// which exposes the same information_schema tables and SHOW CREATE VIEW.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

const (
	defaultPort          = 3306
	defaultStarRocksPort = 9030
)

var queries = catalog.Queries{
	ListObjects: `SELECT TABLE_NAME, TABLE_TYPE, TABLE_COMMENT
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME`,
	ObjectKind: `SELECT TABLE_TYPE
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?`,
	Columns: `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_COMMENT
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`,
	SchemaArgs:       true,
	Definition:       showCreateView,
	DefinitionColumn: 1,
}

// Catalog implements catalog.Conn for MySQL-compatible servers.
type Catalog struct {
	catalog.BaseSQL
}

var _ catalog.Conn = (*Catalog)(nil)

// New creates a new MySQL catalog instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Catalog{
		BaseSQL: catalog.BaseSQL{Logger: logger, Queries: queries},
	}
}

// Connect establishes a connection to the server.
func (c *Catalog) Connect(ctx context.Context, cfg catalog.Config) error {
	if cfg.Database == "" {
		return fmt.Errorf("%s catalog requires a database", cfg.Driver)
	}

	c.Logger.Debug("connecting to mysql",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
		slog.String("driver", cfg.Driver))

	db, err := sql.Open("mysql", buildDSN(cfg))
	if err != nil {
		return fmt.Errorf("failed to open mysql connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return catalog.Unreachable("connect", fmt.Errorf("failed to ping mysql: %w", err))
	}

	c.DB = db
	c.Cfg = cfg
	c.Schema = cfg.Database
	if cfg.Schema != "" {
		c.Schema = cfg.Schema
	}
	return nil
}

// buildDSN constructs a go-sql-driver DSN.
func buildDSN(cfg catalog.Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
		if strings.EqualFold(cfg.Driver, "starrocks") {
			port = defaultStarRocksPort
		}
	}

	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.Timeout = cfg.Timeout
	if len(cfg.Options) > 0 {
		mc.Params = make(map[string]string, len(cfg.Options))
		for k, v := range cfg.Options {
			mc.Params[k] = v
		}
	}
	return mc.FormatDSN()
}

// showCreateView builds the SHOW CREATE VIEW statement, qualified by schema so
// it reads the same database ListObjects does rather than the connection
// default. Identifiers cannot be bound as parameters, so backticks are doubled.
func showCreateView(schema, name string) (string, []any) {
	if schema == "" {
		return "SHOW CREATE VIEW " + quoteIdent(name), nil
	}
	return "SHOW CREATE VIEW " + quoteIdent(schema) + "." + quoteIdent(name), nil
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}
