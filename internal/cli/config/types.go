// Package config loads viewgraph CLI configuration.
//
// Values are layered (lowest to highest): built-in defaults, viewgraph.yaml,
// VIEWGRAPH_* environment variables, then explicitly set flags.
package config

import (
	"time"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Config holds all CLI configuration options.
type Config struct {
	Connection   string                    `koanf:"connection"`
	Connections  map[string]catalog.Config `koanf:"connections"`
	StatePath    string                    `koanf:"state_path"`
	OutputFormat string                    `koanf:"output"`
	Verbose      bool                      `koanf:"verbose"`
	Cache        CacheConfig               `koanf:"cache"`
	Graphviz     GraphvizConfig            `koanf:"graphviz"`
	Server       ServerConfig              `koanf:"server"`
	Snapshot     SnapshotConfig            `koanf:"snapshot"`

	// ConfigFile is the file the config was read from, if any.
	ConfigFile string `koanf:"-"`
}

// CacheConfig sizes the catalog lookup cache. A zero TTL disables caching.
type CacheConfig struct {
	TTL  time.Duration `koanf:"ttl"`
	Size int           `koanf:"size"`
}

// GraphvizConfig locates the dot binary used for image exports.
type GraphvizConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr  string `koanf:"addr"`
	Watch bool   `koanf:"watch"`
}

// SnapshotConfig configures scheduled snapshots and retention.
type SnapshotConfig struct {
	Schedule string `koanf:"schedule"`
	Keep     int    `koanf:"keep"`
}

// Default configuration values.
const (
	DefaultStateFile = ".viewgraph/state.db"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultCacheTTL  = 10 * time.Minute
	DefaultCacheSize = 1024
	DefaultGraphviz  = "dot"
	DefaultAddr      = ":8080"
	DefaultSchedule  = "@every 1h"
	DefaultKeep      = 48
	DefaultTimeout   = 5 * time.Second
)

// ConfigFileNames are searched, in order, when no --config is given.
var ConfigFileNames = []string{"viewgraph.yaml", "viewgraph.yml"}
