// Package snapshot fingerprints a catalog's inventory of tables and views and
// computes what changed between two fingerprints.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// Snapshot is an immutable point-in-time inventory of a catalog.
type Snapshot struct {
	ID         string    `json:"id" yaml:"id"`
	CatalogID  string    `json:"catalog" yaml:"catalog"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
	Tables     []string  `json:"tables" yaml:"tables"`
	Views      []string  `json:"views" yaml:"views"`
	Checksum   string    `json:"checksum" yaml:"checksum"`
	TotalCount int       `json:"total_count" yaml:"total_count"`
}

// New builds a snapshot from names. The inputs are copied and sorted.
func New(catalogID string, at time.Time, tables, views []string) *Snapshot {
	s := &Snapshot{
		ID:        uuid.NewString(),
		CatalogID: catalogID,
		Timestamp: at,
		Tables:    sortedCopy(tables),
		Views:     sortedCopy(views),
	}
	s.TotalCount = len(s.Tables) + len(s.Views)
	s.Checksum = Checksum(s.Tables, s.Views)
	return s
}

// Checksum returns the SHA-256 hex digest of the sorted union of all names,
// encoded as a JSON array.
func Checksum(tables, views []string) string {
	all := make([]string, 0, len(tables)+len(views))
	all = append(all, tables...)
	all = append(all, views...)
	sort.Strings(all)

	// Marshalling a []string cannot fail.
	data, _ := json.Marshal(all)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Names returns every object name in the snapshot, sorted.
func (s *Snapshot) Names() []string {
	all := make([]string, 0, s.TotalCount)
	all = append(all, s.Tables...)
	all = append(all, s.Views...)
	sort.Strings(all)
	return all
}

// Differ takes snapshots of one catalog.
type Differ struct {
	cat    catalog.Catalog
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Differ.
type Option func(*Differ)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(d *Differ) {
		if now != nil {
			d.now = now
		}
	}
}

// WithLogger sets the differ's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Differ) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDiffer creates a Differ over cat.
func NewDiffer(cat catalog.Catalog, opts ...Option) *Differ {
	d := &Differ{
		cat:    cat,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CatalogID returns the id of the catalog being snapshotted.
func (d *Differ) CatalogID() string {
	return d.cat.ID()
}

// Take lists the catalog and returns its current snapshot.
func (d *Differ) Take(ctx context.Context) (*Snapshot, error) {
	objects, err := d.cat.ListObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to take snapshot: %w", err)
	}

	var tables, views []string
	for _, obj := range objects {
		if obj.Kind == catalog.KindView {
			views = append(views, obj.Name)
		} else {
			tables = append(tables, obj.Name)
		}
	}

	s := New(d.cat.ID(), d.now().UTC(), tables, views)
	d.logger.Debug("snapshot taken",
		slog.String("catalog", s.CatalogID),
		slog.Int("tables", len(s.Tables)),
		slog.Int("views", len(s.Views)),
		slog.String("checksum", s.Checksum))
	return s, nil
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
