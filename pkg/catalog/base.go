package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Queries describes how a SQL dialect exposes its catalog.
//
// ListObjects must return (name, type, comment) rows. ObjectKind must return a
// single type column for one object. Columns takes the object name and must
// return (name, type, is_nullable, comment) rows in ordinal order, with
// is_nullable spelled YES or NO. When SchemaArgs is set, the schema is passed
// as the first argument to ListObjects, ObjectKind and Columns.
type Queries struct {
	ListObjects string
	ObjectKind  string
	Columns     string
	SchemaArgs  bool

	// Definition builds the query that returns a view's definition text.
	Definition func(schema, name string) (query string, args []any)

	// DefinitionColumn is the zero-based column holding the definition text.
	DefinitionColumn int
}

// BaseSQL provides a Catalog over database/sql. Embed it in driver
// implementations, which only need to set DB, Cfg, Schema and Queries in
// their Connect method.
type BaseSQL struct {
	DB      *sql.DB
	Cfg     Config
	Schema  string
	Queries Queries
	Logger  *slog.Logger
}

// ID returns the configured database name, falling back to the file name for
// file-backed stores.
func (b *BaseSQL) ID() string {
	if b.Cfg.Database != "" {
		return b.Cfg.Database
	}
	if b.Cfg.Path != "" {
		return strings.TrimSuffix(filepath.Base(b.Cfg.Path), filepath.Ext(b.Cfg.Path))
	}
	return b.Cfg.Driver
}

// Close closes the database connection.
func (b *BaseSQL) Close() error {
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing catalog connection", slog.String("driver", b.Cfg.Driver))
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQL) IsConnected() bool {
	return b.DB != nil
}

// Ping verifies the connection.
func (b *BaseSQL) Ping(ctx context.Context) error {
	if b.DB == nil {
		return Unreachable("ping", fmt.Errorf("database connection not established"))
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	if err := b.DB.PingContext(ctx); err != nil {
		return Unreachable("ping", err)
	}
	return nil
}

func (b *BaseSQL) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Cfg.Timeout > 0 {
		return context.WithTimeout(ctx, b.Cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (b *BaseSQL) args(extra ...any) []any {
	if !b.Queries.SchemaArgs {
		return extra
	}
	return append([]any{b.Schema}, extra...)
}

// ObjectExists implements Catalog.
func (b *BaseSQL) ObjectExists(ctx context.Context, name string) (bool, error) {
	kind, err := b.ObjectKind(ctx, name)
	if err != nil {
		return false, err
	}
	return kind != KindNone, nil
}

// ObjectKind implements Catalog.
func (b *BaseSQL) ObjectKind(ctx context.Context, name string) (Kind, error) {
	if b.DB == nil {
		return KindNone, ErrClosed
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	var typ sql.NullString
	err := b.DB.QueryRowContext(ctx, b.Queries.ObjectKind, b.args(name)...).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return KindNone, nil
	}
	if err != nil {
		return KindNone, Unreachable("object kind", err)
	}
	return ParseKind(typ.String), nil
}

// DefinitionText implements Catalog.
func (b *BaseSQL) DefinitionText(ctx context.Context, name string) (string, error) {
	if b.DB == nil {
		return "", ErrClosed
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	query, args := b.Queries.Definition(b.Schema, name)
	rows, err := b.DB.QueryContext(ctx, query, args...)
	if err != nil {
		if ctx.Err() != nil {
			return "", Unreachable("definition", err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrDefinitionUnavailable, name, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrDefinitionUnavailable, name, err)
	}
	if b.Queries.DefinitionColumn >= len(cols) {
		return "", fmt.Errorf("%w: %s: definition column %d out of range", ErrDefinitionUnavailable, name, b.Queries.DefinitionColumn)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrDefinitionUnavailable, name, err)
		}
		return "", &NotFoundError{Name: name}
	}

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrDefinitionUnavailable, name, err)
	}

	def := values[b.Queries.DefinitionColumn].String
	if strings.TrimSpace(def) == "" {
		return "", fmt.Errorf("%w: %s: empty definition", ErrDefinitionUnavailable, name)
	}
	return def, nil
}

// ListObjects implements Catalog.
func (b *BaseSQL) ListObjects(ctx context.Context) ([]Object, error) {
	if b.DB == nil {
		return nil, ErrClosed
	}
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	rows, err := b.DB.QueryContext(ctx, b.Queries.ListObjects, b.args()...)
	if err != nil {
		return nil, Unreachable("list objects", err)
	}
	defer func() { _ = rows.Close() }()

	var objects []Object
	for rows.Next() {
		var name, typ, comment sql.NullString
		if err := rows.Scan(&name, &typ, &comment); err != nil {
			return nil, Unreachable("scan object", err)
		}
		objects = append(objects, Object{
			Name:    name.String,
			Kind:    ParseKind(typ.String),
			Comment: comment.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, Unreachable("list objects", err)
	}

	if b.Logger != nil {
		b.Logger.Debug("listed catalog objects", slog.Int("count", len(objects)))
	}
	return objects, nil
}

// Columns implements Catalog. An empty result is disambiguated with
// ObjectKind: unknown names are not found, known ones have no columns.
func (b *BaseSQL) Columns(ctx context.Context, name string) ([]Column, error) {
	if b.DB == nil {
		return nil, ErrClosed
	}
	if b.Queries.Columns == "" {
		return nil, fmt.Errorf("%s catalog cannot list columns", b.Cfg.Driver)
	}
	qctx, cancel := b.withTimeout(ctx)
	defer cancel()

	rows, err := b.DB.QueryContext(qctx, b.Queries.Columns, b.args(name)...)
	if err != nil {
		return nil, Unreachable("columns", err)
	}
	defer func() { _ = rows.Close() }()

	columns := []Column{}
	for rows.Next() {
		var col, typ, nullable, comment sql.NullString
		if err := rows.Scan(&col, &typ, &nullable, &comment); err != nil {
			return nil, Unreachable("scan column", err)
		}
		columns = append(columns, Column{
			Name:     col.String,
			Type:     typ.String,
			Nullable: strings.EqualFold(strings.TrimSpace(nullable.String), "YES"),
			Comment:  comment.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, Unreachable("columns", err)
	}

	if len(columns) == 0 {
		kind, err := b.ObjectKind(ctx, name)
		if err != nil {
			return nil, err
		}
		if kind == KindNone {
			return nil, &NotFoundError{Name: name}
		}
	}
	return columns, nil
}
