// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/leapstack-labs/viewgraph/internal/cli/output"
)

// WarehouseSchema is the fixture catalog created by SetupWarehouse.
//
//	orders, customers    tables read by views
//	audit_log            table nothing reads
//	v_orders             reads orders
//	v_summary            reads v_orders and customers
var WarehouseSchema = []string{
	`CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT)`,
	`CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER, total REAL)`,
	`CREATE TABLE audit_log (id INTEGER PRIMARY KEY, message TEXT)`,
	`CREATE VIEW v_orders AS SELECT o.id, o.customer_id, o.total FROM orders o`,
	`CREATE VIEW v_summary AS SELECT c.name, sum(v.total) AS total FROM v_orders v JOIN customers c ON c.id = v.customer_id GROUP BY c.name`,
}

// Warehouse is a fixture catalog on disk with a config file pointing at it.
type Warehouse struct {
	Dir        string
	DBPath     string
	ConfigPath string
	StatePath  string
}

// SetupWarehouse creates a SQLite database with WarehouseSchema and a
// viewgraph.yaml defining it as the "local" connection.
func SetupWarehouse(t *testing.T) *Warehouse {
	t.Helper()

	dir := t.TempDir()
	w := &Warehouse{
		Dir:        dir,
		DBPath:     filepath.Join(dir, "warehouse.db"),
		ConfigPath: filepath.Join(dir, "viewgraph.yaml"),
		StatePath:  filepath.Join(dir, "state.db"),
	}

	Exec(t, w.DBPath, WarehouseSchema...)

	cfg := `connection: local
connections:
  local:
    driver: sqlite
    path: ` + w.DBPath + `
  remote:
    driver: postgres
    host: db.internal
    port: 5432
    database: analytics
    user: reader
    password: hunter2
state_path: state.db
output: json
cache:
  ttl: 1m
  size: 64
snapshot:
  keep: 5
`
	if err := os.WriteFile(w.ConfigPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return w
}

// Exec runs statements against the SQLite database at path.
func Exec(t *testing.T, path string, stmts ...string) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open %s: %v", path, err)
	}
	defer db.Close()

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
