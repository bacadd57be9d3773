package duckdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	ctx := context.Background()

	c := New(nil)
	require.NoError(t, c.Connect(ctx, catalog.Config{Driver: "duckdb", Path: ":memory:"}))
	t.Cleanup(func() { _ = c.Close() })

	for _, stmt := range []string{
		`CREATE TABLE raw_events (id INTEGER, kind VARCHAR)`,
		`COMMENT ON TABLE raw_events IS 'landing table'`,
		`CREATE VIEW stg_events AS SELECT * FROM raw_events`,
		`CREATE VIEW fct_events AS SELECT kind, count(*) AS n FROM stg_events GROUP BY kind`,
	} {
		_, err := c.DB.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	return c
}

func TestCatalog_Connect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.duckdb")
	c := New(nil)
	require.NoError(t, c.Connect(context.Background(), catalog.Config{
		Driver:  "duckdb",
		Path:    path,
		Options: map[string]string{"memory_limit": "512MB"},
	}))
	defer func() { _ = c.Close() }()

	_, err := os.Stat(path)
	assert.NoError(t, err, "database file was created")
	assert.Equal(t, "test", c.ID())
}

func TestCatalog_ListObjects(t *testing.T) {
	c := newTestCatalog(t)

	objects, err := c.ListObjects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []catalog.Object{
		{Name: "fct_events", Kind: catalog.KindView},
		{Name: "raw_events", Kind: catalog.KindTable, Comment: "landing table"},
		{Name: "stg_events", Kind: catalog.KindView},
	}, objects)
}

func TestCatalog_DefinitionText(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	def, err := c.DefinitionText(ctx, "fct_events")
	require.NoError(t, err)
	assert.Contains(t, def, "stg_events")

	kind, err := c.ObjectKind(ctx, "stg_events")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindView, kind)

	_, err = c.DefinitionText(ctx, "raw_events")
	assert.True(t, catalog.IsNotFound(err))
}

func TestSettingStatement(t *testing.T) {
	assert.Equal(t, "SET memory_limit = '1GB'", settingStatement("memory_limit", "1GB"))
	assert.Equal(t, "SET x = 'it''s'", settingStatement("x", "it's"))
}

func TestRegistered(t *testing.T) {
	assert.True(t, catalog.IsRegistered("duckdb"))
}

func TestCatalog_Columns(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	columns, err := c.Columns(ctx, "raw_events")
	require.NoError(t, err)
	assert.Equal(t, []catalog.Column{
		{Name: "id", Type: "INTEGER", Nullable: true},
		{Name: "kind", Type: "VARCHAR", Nullable: true},
	}, columns)

	columns, err = c.Columns(ctx, "fct_events")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, "kind", columns[0].Name)
	assert.Equal(t, "n", columns[1].Name)

	_, err = c.Columns(ctx, "nope")
	assert.True(t, catalog.IsNotFound(err))
}
