package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// SaveSnapshot stores a snapshot and its object names.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	if s.db == nil {
		return fmt.Errorf("database not open")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, catalog_id, taken_at, checksum, total_count)
		VALUES (?, ?, ?, ?, ?)
	`, snap.ID, snap.CatalogID, formatTime(snap.Timestamp), snap.Checksum, snap.TotalCount); err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshot_objects (snapshot_id, name, kind)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	insert := func(names []string, kind catalog.Kind) error {
		for _, name := range names {
			if _, err := stmt.ExecContext(ctx, snap.ID, name, string(kind)); err != nil {
				return fmt.Errorf("insert snapshot object %s: %w", name, err)
			}
		}
		return nil
	}
	if err := insert(snap.Tables, catalog.KindTable); err != nil {
		return err
	}
	if err := insert(snap.Views, catalog.KindView); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.Debug("snapshot saved",
		slog.String("id", snap.ID),
		slog.String("catalog", snap.CatalogID),
		slog.Int("objects", snap.TotalCount))
	return nil
}

// GetSnapshot loads a snapshot by id.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, catalog_id, taken_at, checksum, total_count
		FROM snapshots WHERE id = ?
	`, id)
	return s.loadSnapshot(ctx, row)
}

// LatestSnapshot loads the most recent snapshot of a catalog.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context, catalogID string) (*snapshot.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, catalog_id, taken_at, checksum, total_count
		FROM snapshots WHERE catalog_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT 1
	`, catalogID)
	return s.loadSnapshot(ctx, row)
}

func (s *SQLiteStore) loadSnapshot(ctx context.Context, row *sql.Row) (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	var takenAt string
	err := row.Scan(&snap.ID, &snap.CatalogID, &takenAt, &snap.Checksum, &snap.TotalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	if snap.Timestamp, err = time.Parse(timeLayout, takenAt); err != nil {
		return nil, fmt.Errorf("parse snapshot time %q: %w", takenAt, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, kind FROM snapshot_objects
		WHERE snapshot_id = ?
		ORDER BY name
	`, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("query snapshot objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snap.Tables = []string{}
	snap.Views = []string{}
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return nil, fmt.Errorf("scan snapshot object: %w", err)
		}
		if catalog.Kind(kind) == catalog.KindView {
			snap.Views = append(snap.Views, name)
		} else {
			snap.Tables = append(snap.Tables, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns the most recent snapshots of a catalog, newest first.
// A non-positive limit returns all of them.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, catalogID string, limit int) ([]Summary, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, catalog_id, taken_at, checksum, total_count
		FROM snapshots WHERE catalog_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT ?
	`, catalogID, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []Summary{}
	for rows.Next() {
		var sum Summary
		var takenAt string
		if err := rows.Scan(&sum.ID, &sum.CatalogID, &takenAt, &sum.Checksum, &sum.TotalCount); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if sum.Timestamp, err = time.Parse(timeLayout, takenAt); err != nil {
			return nil, fmt.Errorf("parse snapshot time %q: %w", takenAt, err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return summaries, nil
}

// PruneSnapshots deletes all but the newest keep snapshots of a catalog and
// returns how many were removed.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, catalogID string, keep int) (int, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database not open")
	}
	if keep < 0 {
		keep = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const stale = `
		SELECT id FROM snapshots
		WHERE catalog_id = ?
		ORDER BY taken_at DESC, rowid DESC
		LIMIT -1 OFFSET ?
	`
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_objects WHERE snapshot_id IN (`+stale+`)`, catalogID, keep); err != nil {
		return 0, fmt.Errorf("delete snapshot objects: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE id IN (`+stale+`)`, catalogID, keep)
	if err != nil {
		return 0, fmt.Errorf("delete old snapshots: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	if removed > 0 {
		s.logger.Info("pruned snapshots",
			slog.String("catalog", catalogID),
			slog.Int64("removed", removed),
			slog.Int("kept", keep))
	}
	return int(removed), nil
}
