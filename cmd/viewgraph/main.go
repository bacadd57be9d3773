// Package main provides the viewgraph CLI.
package main

import (
	"os"

	"github.com/leapstack-labs/viewgraph/internal/cli"

	// Catalog drivers
	_ "github.com/leapstack-labs/viewgraph/pkg/catalogs/duckdb"
	_ "github.com/leapstack-labs/viewgraph/pkg/catalogs/mysql"
	_ "github.com/leapstack-labs/viewgraph/pkg/catalogs/postgres"
	_ "github.com/leapstack-labs/viewgraph/pkg/catalogs/sqlite"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
