package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/internal/testutil"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenMigrated(":memory:", testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func snapAt(catalogID string, minute int, tables, views []string) *snapshot.Snapshot {
	at := time.Date(2026, 1, 1, 0, minute, 0, 0, time.UTC)
	return snapshot.New(catalogID, at, tables, views)
}

func TestSQLiteStore_OpenClose(t *testing.T) {
	store := NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	assert.Equal(t, ":memory:", store.Path())
	require.NoError(t, store.Close())
	require.NoError(t, store.Close(), "double close is a no-op")
}

func TestSQLiteStore_NotOpened(t *testing.T) {
	store := NewSQLiteStore(nil)
	ctx := context.Background()

	require.Error(t, store.Migrate())
	_, err := store.GetMigrationVersion()
	require.Error(t, err)
	require.Error(t, store.SaveSnapshot(ctx, snapAt("db", 0, nil, nil)))
	_, err = store.LatestSnapshot(ctx, "db")
	require.Error(t, err)
}

func TestSQLiteStore_Migrate(t *testing.T) {
	store := setupTestStore(t)

	version, err := store.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	// Re-running is a no-op.
	require.NoError(t, store.Migrate())

	for _, table := range []string{"snapshots", "snapshot_objects"} {
		rows, err := store.db.Query("SELECT 1 FROM " + table + " LIMIT 1")
		require.NoError(t, err, "table %s should exist", table)
		_ = rows.Close()
	}
}

func TestSQLiteStore_SaveAndGetSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := snapAt("shop", 5, []string{"t2", "t1"}, []string{"v1"})
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)

	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, "shop", got.CatalogID)
	assert.True(t, snap.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, []string{"t1", "t2"}, got.Tables)
	assert.Equal(t, []string{"v1"}, got.Views)
	assert.Equal(t, snap.Checksum, got.Checksum)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, snapshot.Checksum(got.Tables, got.Views), got.Checksum)
}

func TestSQLiteStore_EmptySnapshotRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := snapAt("empty", 0, nil, nil)
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Tables)
	assert.NotNil(t, got.Views)
	assert.Zero(t, got.TotalCount)
}

func TestSQLiteStore_DuplicateID(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	snap := snapAt("shop", 0, []string{"t"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	require.Error(t, store.SaveSnapshot(ctx, snap))

	// The failed save must not leave partial rows behind.
	got, err := store.GetSnapshot(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, got.Tables)
}

func TestSQLiteStore_GetSnapshot_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSnapshot(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestSQLiteStore_LatestSnapshot(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.LatestSnapshot(ctx, "shop")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	older := snapAt("shop", 1, []string{"t1"}, nil)
	newer := snapAt("shop", 2, []string{"t1", "t2"}, nil)
	other := snapAt("crm", 3, []string{"accounts"}, nil)
	for _, s := range []*snapshot.Snapshot{newer, older, other} {
		require.NoError(t, store.SaveSnapshot(ctx, s))
	}

	got, err := store.LatestSnapshot(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, got.ID)

	delta := snapshot.Compare(got, snapAt("shop", 4, []string{"t2"}, []string{"v"}))
	assert.True(t, delta.HasChanges)
	assert.Equal(t, []string{"t1"}, delta.RemovedTables)
	assert.Equal(t, []string{"v"}, delta.AddedViews)
}

func TestSQLiteStore_LatestSnapshot_SubSecondOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	whole := snapshot.New("shop", base, []string{"a"}, nil)
	fraction := snapshot.New("shop", base.Add(500*time.Millisecond), []string{"b"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, fraction))
	require.NoError(t, store.SaveSnapshot(ctx, whole))

	got, err := store.LatestSnapshot(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, fraction.ID, got.ID)
}

func TestSQLiteStore_ListSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		s := snapAt("shop", i, []string{"t"}, nil)
		require.NoError(t, store.SaveSnapshot(ctx, s))
		ids = append(ids, s.ID)
	}

	tests := []struct {
		name  string
		limit int
		want  []string
	}{
		{"all", 0, []string{ids[3], ids[2], ids[1], ids[0]}},
		{"limited", 2, []string{ids[3], ids[2]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListSnapshots(ctx, "shop", tt.limit)
			require.NoError(t, err)
			var gotIDs []string
			for _, s := range got {
				gotIDs = append(gotIDs, s.ID)
				assert.Equal(t, 1, s.TotalCount)
			}
			assert.Equal(t, tt.want, gotIDs)
		})
	}

	none, err := store.ListSnapshots(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_PruneSnapshots(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		s := snapAt("shop", i, []string{"t"}, []string{"v"})
		require.NoError(t, store.SaveSnapshot(ctx, s))
		ids = append(ids, s.ID)
	}
	other := snapAt("crm", 0, []string{"accounts"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, other))

	removed, err := store.PruneSnapshots(ctx, "shop", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	left, err := store.ListSnapshots(ctx, "shop", 0)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.Equal(t, ids[4], left[0].ID)
	assert.Equal(t, ids[3], left[1].ID)

	_, err = store.GetSnapshot(ctx, ids[0])
	assert.ErrorIs(t, err, ErrSnapshotNotFound)

	var orphans int
	require.NoError(t, store.db.QueryRow(`
		SELECT COUNT(*) FROM snapshot_objects
		WHERE snapshot_id NOT IN (SELECT id FROM snapshots)
	`).Scan(&orphans))
	assert.Zero(t, orphans)

	_, err = store.GetSnapshot(ctx, other.ID)
	assert.NoError(t, err, "other catalogs are untouched")

	removed, err = store.PruneSnapshots(ctx, "shop", 2)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestSQLiteStore_FileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	store, err := OpenMigrated(path, nil)
	require.NoError(t, err)
	snap := snapAt("shop", 0, []string{"t"}, nil)
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	require.NoError(t, store.Close())

	reopened, err := OpenMigrated(path, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.LatestSnapshot(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
}
