// Package state persists catalog snapshots between runs in SQLite so that
// drift can be reported against the last stored inventory.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// ErrSnapshotNotFound is returned when a snapshot id or catalog has no record.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Store persists snapshots.
type Store interface {
	SaveSnapshot(ctx context.Context, s *snapshot.Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error)
	LatestSnapshot(ctx context.Context, catalogID string) (*snapshot.Snapshot, error)
	ListSnapshots(ctx context.Context, catalogID string, limit int) ([]Summary, error)
	PruneSnapshots(ctx context.Context, catalogID string, keep int) (int, error)
	Close() error
}

// Summary describes a stored snapshot without its object names.
type Summary struct {
	ID         string    `json:"id"`
	CatalogID  string    `json:"catalog"`
	Timestamp  time.Time `json:"timestamp"`
	Checksum   string    `json:"checksum"`
	TotalCount int       `json:"total_count"`
}

// SummaryOf returns the summary of s.
func SummaryOf(s *snapshot.Snapshot) Summary {
	return Summary{
		ID:         s.ID,
		CatalogID:  s.CatalogID,
		Timestamp:  s.Timestamp,
		Checksum:   s.Checksum,
		TotalCount: s.TotalCount,
	}
}

var _ Store = (*SQLiteStore)(nil)
