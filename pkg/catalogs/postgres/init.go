// Package postgres registers the PostgreSQL catalog driver.
//
// Import this package with a blank identifier to register it:
//
//	import _ "github.com/leapstack-labs/viewgraph/pkg/catalogs/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func init() {
	catalog.Register("postgres", func(logger *slog.Logger) catalog.Conn { return New(logger) })
}
