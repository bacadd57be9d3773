// Package mysql registers the MySQL and StarRocks catalog drivers.
//
// Import this package with a blank identifier to register them:
//
//	import _ "github.com/leapstack-labs/viewgraph/pkg/catalogs/mysql"
package mysql

import (
	"log/slog"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

func init() {
	catalog.Register("mysql", func(logger *slog.Logger) catalog.Conn { return New(logger) })
	catalog.Register("starrocks", func(logger *slog.Logger) catalog.Conn { return New(logger) })
}
