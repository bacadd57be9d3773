package catalog

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Default cache settings.
const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute
)

const listKey = "\x00objects"

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cached decorates a Catalog with expiring LRU caches for kind lookups,
// definitions, column layouts and listings. Errors are never cached.
type Cached struct {
	inner       Catalog
	kinds       *lru.LRU[string, Kind]
	definitions *lru.LRU[string, string]
	columns     *lru.LRU[string, []Column]
	listings    *lru.LRU[string, []Object]
	hits        atomic.Int64
	misses      atomic.Int64
}

var _ Catalog = (*Cached)(nil)

// NewCached wraps inner. size <= 0 and ttl <= 0 fall back to the defaults.
func NewCached(inner Catalog, size int, ttl time.Duration) *Cached {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{
		inner:       inner,
		kinds:       lru.NewLRU[string, Kind](size, nil, ttl),
		definitions: lru.NewLRU[string, string](size, nil, ttl),
		columns:     lru.NewLRU[string, []Column](size, nil, ttl),
		listings:    lru.NewLRU[string, []Object](1, nil, ttl),
	}
}

// Unwrap returns the decorated catalog.
func (c *Cached) Unwrap() Catalog {
	return c.inner
}

// ID implements Catalog.
func (c *Cached) ID() string {
	return c.inner.ID()
}

// ObjectExists implements Catalog.
func (c *Cached) ObjectExists(ctx context.Context, name string) (bool, error) {
	kind, err := c.ObjectKind(ctx, name)
	if err != nil {
		return false, err
	}
	return kind != KindNone, nil
}

// ObjectKind implements Catalog.
func (c *Cached) ObjectKind(ctx context.Context, name string) (Kind, error) {
	if kind, ok := c.kinds.Get(name); ok {
		c.hits.Add(1)
		return kind, nil
	}
	c.misses.Add(1)
	kind, err := c.inner.ObjectKind(ctx, name)
	if err != nil {
		return KindNone, err
	}
	c.kinds.Add(name, kind)
	return kind, nil
}

// DefinitionText implements Catalog.
func (c *Cached) DefinitionText(ctx context.Context, name string) (string, error) {
	if def, ok := c.definitions.Get(name); ok {
		c.hits.Add(1)
		return def, nil
	}
	c.misses.Add(1)
	def, err := c.inner.DefinitionText(ctx, name)
	if err != nil {
		return "", err
	}
	c.definitions.Add(name, def)
	return def, nil
}

// Columns implements Catalog. The returned slice is a copy.
func (c *Cached) Columns(ctx context.Context, name string) ([]Column, error) {
	if columns, ok := c.columns.Get(name); ok {
		c.hits.Add(1)
		return append([]Column{}, columns...), nil
	}
	c.misses.Add(1)
	columns, err := c.inner.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	c.columns.Add(name, append([]Column{}, columns...))
	return columns, nil
}

// ListObjects implements Catalog. The returned slice is a copy.
func (c *Cached) ListObjects(ctx context.Context) ([]Object, error) {
	if objects, ok := c.listings.Get(listKey); ok {
		c.hits.Add(1)
		return append([]Object(nil), objects...), nil
	}
	c.misses.Add(1)
	objects, err := c.inner.ListObjects(ctx)
	if err != nil {
		return nil, err
	}
	c.listings.Add(listKey, append([]Object(nil), objects...))
	for _, obj := range objects {
		c.kinds.Add(obj.Name, obj.Kind)
	}
	return objects, nil
}

// Purge drops every cached entry.
func (c *Cached) Purge() {
	c.kinds.Purge()
	c.definitions.Purge()
	c.columns.Purge()
	c.listings.Purge()
}

// Stats returns hit/miss counters and the number of live entries.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.kinds.Len() + c.definitions.Len() + c.columns.Len() + c.listings.Len(),
	}
}

// Close closes the wrapped catalog if it can be closed.
func (c *Cached) Close() error {
	c.Purge()
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
