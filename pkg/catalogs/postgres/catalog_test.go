package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func TestBuildPostgresDSN(t *testing.T) {
	tests := []struct {
		name     string
		config   catalog.Config
		expected string
	}{
		{
			name: "basic connection",
			config: catalog.Config{
				Host:     "localhost",
				Port:     5432,
				Database: "testdb",
				User:     "user",
				Password: "pass",
			},
			expected: "host=localhost port=5432 dbname=testdb sslmode=disable user=user password=pass",
		},
		{
			name: "with custom sslmode",
			config: catalog.Config{
				Host:     "prod.example.com",
				Database: "proddb",
				User:     "admin",
				Options:  map[string]string{"sslmode": "require", "application_name": "viewgraph"},
			},
			expected: "host=prod.example.com port=5432 dbname=proddb sslmode=require user=admin application_name=viewgraph",
		},
		{
			name:     "defaults",
			config:   catalog.Config{Database: "mydb"},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable",
		},
		{
			name:     "timeout",
			config:   catalog.Config{Database: "mydb", Timeout: 10 * time.Second},
			expected: "host=localhost port=5432 dbname=mydb sslmode=disable connect_timeout=10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildPostgresDSN(tt.config))
		})
	}
}

func TestRegistered(t *testing.T) {
	assert.True(t, catalog.IsRegistered("postgres"))
}

func TestCatalog_DefinitionText(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	c := New(nil)
	c.DB = db
	c.Schema = "analytics"

	mock.ExpectQuery("FROM information_schema.views").
		WithArgs("analytics", "v_sales").
		WillReturnRows(sqlmock.NewRows([]string{"definition"}).
			AddRow("CREATE VIEW v_sales AS SELECT * FROM analytics.sales"))

	def, err := c.DefinitionText(context.Background(), "v_sales")
	require.NoError(t, err)
	assert.Equal(t, "CREATE VIEW v_sales AS SELECT * FROM analytics.sales", def)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_ObjectKind(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	c := New(nil)
	c.DB = db
	c.Schema = "public"

	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("public", "sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_type"}).AddRow("BASE TABLE"))

	kind, err := c.ObjectKind(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, catalog.KindTable, kind)
}

func TestCatalog_Columns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	c := New(nil)
	c.DB = db
	c.Schema = "analytics"

	mock.ExpectQuery("FROM information_schema.columns col").
		WithArgs("analytics", "sales").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "comment"}).
			AddRow("id", "bigint", "NO", "").
			AddRow("amount", "numeric", "YES", "gross amount"))

	columns, err := c.Columns(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, []catalog.Column{
		{Name: "id", Type: "bigint"},
		{Name: "amount", Type: "numeric", Nullable: true, Comment: "gross amount"},
	}, columns)
	assert.NoError(t, mock.ExpectationsWereMet())
}
