// Package catalog provides read-only access to the schema objects of an
// analytical store: which tables and views exist, what kind each one is, and
// the raw definition text of views and the column layout of both.
//
// The Catalog interface is the only contract the dependency engine relies on.
// SQL-backed implementations live in pkg/catalogs/ subdirectories and register
// themselves with Register; Memory is an in-process implementation used for
// fixtures and tests.
package catalog

import (
	"context"
	"strings"
	"time"
)

// Kind identifies the type of a schema object.
type Kind string

// Object kinds. KindNone is returned for names the catalog does not know.
const (
	KindNone  Kind = ""
	KindTable Kind = "TABLE"
	KindView  Kind = "VIEW"
)

// String returns the upper-case kind label.
func (k Kind) String() string {
	if k == KindNone {
		return "NONE"
	}
	return string(k)
}

// Lower returns the lower-case label used in structured documents.
func (k Kind) Lower() string {
	return strings.ToLower(k.String())
}

// ParseKind maps a catalog type string (e.g. information_schema TABLE_TYPE)
// to a Kind. Anything that is not a view is treated as a table.
func ParseKind(s string) Kind {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return KindNone
	case "VIEW", "SYSTEM VIEW", "MATERIALIZED VIEW", "V", "M":
		return KindView
	default:
		return KindTable
	}
}

// Object is a single table or view known to the catalog.
type Object struct {
	Name    string `json:"name" yaml:"name"`
	Kind    Kind   `json:"type" yaml:"type"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Column is one column of a table or view, in declaration order.
type Column struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Nullable bool   `json:"nullable" yaml:"nullable"`
	Comment  string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// Catalog is a read-only accessor to the objects of one database.
// Implementations must not mutate the underlying store.
type Catalog interface {
	// ID identifies the catalog (typically the database or schema name).
	ID() string

	// ObjectExists reports whether name is a table or view in the catalog.
	ObjectExists(ctx context.Context, name string) (bool, error)

	// ObjectKind returns the kind of name, or KindNone if it does not exist.
	ObjectKind(ctx context.Context, name string) (Kind, error)

	// DefinitionText returns the raw "show create" style definition of a view.
	DefinitionText(ctx context.Context, name string) (string, error)

	// ListObjects returns every table and view in the catalog.
	ListObjects(ctx context.Context) ([]Object, error)

	// Columns returns the columns of a table or view in ordinal order. A name
	// the catalog does not know yields a *NotFoundError.
	Columns(ctx context.Context, name string) ([]Column, error)
}

// Config holds the settings needed to open a SQL-backed catalog.
type Config struct {
	Driver   string            `koanf:"driver"`
	Host     string            `koanf:"host"`
	Port     int               `koanf:"port"`
	Database string            `koanf:"database"`
	Schema   string            `koanf:"schema"`
	User     string            `koanf:"user"`
	Password string            `koanf:"password"`
	Path     string            `koanf:"path"`
	Timeout  time.Duration     `koanf:"timeout"`
	Options  map[string]string `koanf:"options"`
}

// Masked returns a copy of the config with the password hidden.
func (c Config) Masked() Config {
	if c.Password != "" {
		c.Password = "******"
	}
	return c
}
