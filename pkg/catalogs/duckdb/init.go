// Package duckdb registers the DuckDB catalog driver.
//
//	import _ "github.com/leapstack-labs/viewgraph/pkg/catalogs/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func init() {
	catalog.Register("duckdb", func(logger *slog.Logger) catalog.Conn { return New(logger) })
}
