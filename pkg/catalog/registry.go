package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Conn is a Catalog backed by a live database connection.
type Conn interface {
	Catalog

	// Connect opens the connection using cfg.
	Connect(ctx context.Context, cfg Config) error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*slog.Logger) Conn)
)

// Register adds a catalog driver factory to the registry.
// Called by driver packages in their init() functions.
func Register(driver string, factory func(*slog.Logger) Conn) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(driver)] = factory
}

// Get retrieves a driver factory by name.
func Get(driver string) (func(*slog.Logger) Conn, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[strings.ToLower(driver)]
	return f, ok
}

// ListDrivers returns all registered driver names (sorted).
func ListDrivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a driver is registered.
func IsRegistered(driver string) bool {
	_, ok := Get(driver)
	return ok
}

// New creates an unconnected catalog for cfg.Driver.
// The logger is passed to the driver constructor (nil uses a discard logger).
func New(cfg Config, logger *slog.Logger) (Conn, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("catalog driver not specified")
	}
	factory, ok := Get(cfg.Driver)
	if !ok {
		return nil, &UnknownDriverError{
			Driver:    cfg.Driver,
			Available: ListDrivers(),
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return factory(logger), nil
}

// Open creates a catalog for cfg.Driver and connects it.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Conn, error) {
	conn, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return conn, nil
}
