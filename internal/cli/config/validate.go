package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

var validOutputs = []string{"auto", "text", "markdown", "md", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !contains(validOutputs, strings.ToLower(c.OutputFormat)) && c.OutputFormat != "" {
		return fmt.Errorf("invalid output %q (valid: auto, text, markdown, json)", c.OutputFormat)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("cache.size must not be negative")
	}
	if c.Snapshot.Keep < 0 {
		return fmt.Errorf("snapshot.keep must not be negative")
	}
	if c.Connection != "" {
		if _, ok := c.Connections[c.Connection]; !ok {
			return fmt.Errorf("connection %q is not defined\nHint: Add it under connections: in %s", c.Connection, c.configName())
		}
	}
	for _, name := range c.ConnectionNames() {
		if err := validateConnection(name, c.Connections[name]); err != nil {
			return err
		}
	}
	return nil
}

func validateConnection(name string, conn catalog.Config) error {
	if conn.Driver == "" {
		return fmt.Errorf("connections.%s.driver is required", name)
	}
	if !catalog.IsRegistered(conn.Driver) {
		return fmt.Errorf("connections.%s: %w", name, &catalog.UnknownDriverError{
			Driver:    conn.Driver,
			Available: catalog.ListDrivers(),
		})
	}
	return nil
}

// ConnectionNames returns the configured connection names, sorted.
func (c *Config) ConnectionNames() []string {
	names := make([]string, 0, len(c.Connections))
	for name := range c.Connections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatalogConfig resolves the connection to use. An empty name falls back to
// the configured default connection, then to the only connection defined.
func (c *Config) CatalogConfig(name string) (catalog.Config, string, error) {
	if name == "" {
		name = c.Connection
	}
	if name == "" {
		switch len(c.Connections) {
		case 0:
			return catalog.Config{}, "", fmt.Errorf("no connections configured\nHint: Define connections: in %s or pass --connection", c.configName())
		case 1:
			name = c.ConnectionNames()[0]
		default:
			return catalog.Config{}, "", fmt.Errorf("multiple connections configured (%s); choose one with --connection", strings.Join(c.ConnectionNames(), ", "))
		}
	}

	conn, ok := c.Connections[name]
	if !ok {
		return catalog.Config{}, "", fmt.Errorf("connection %q is not defined (available: %s)", name, strings.Join(c.ConnectionNames(), ", "))
	}
	if conn.Timeout == 0 {
		conn.Timeout = DefaultTimeout
	}
	return conn, name, nil
}

func (c *Config) configName() string {
	if c.ConfigFile != "" {
		return c.ConfigFile
	}
	return ConfigFileNames[0]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
