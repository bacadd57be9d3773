// Package sqlite registers the SQLite catalog driver.
//
//	import _ "github.com/leapstack-labs/viewgraph/pkg/catalogs/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func init() {
	catalog.Register("sqlite", func(logger *slog.Logger) catalog.Conn { return New(logger) })
}
