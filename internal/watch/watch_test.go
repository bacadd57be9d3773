package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/internal/testutil"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

func setup(t *testing.T, opts ...Option) (*catalog.Memory, *state.SQLiteStore, *Watcher) {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	store, err := state.OpenMigrated(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cat := catalog.NewMemory("shop").AddTable("orders", "").AddView("v_orders", "SELECT * FROM orders")

	// Distinct, increasing timestamps keep "latest" well defined.
	var mu sync.Mutex
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}

	differ := snapshot.NewDiffer(cat, snapshot.WithClock(now), snapshot.WithLogger(logger))
	opts = append([]Option{WithLogger(logger)}, opts...)
	return cat, store, New(differ, store, opts...)
}

func TestWatcher_Tick(t *testing.T) {
	var changes []Result
	cat, store, w := setup(t, OnChange(func(r Result) { changes = append(changes, r) }))
	ctx := context.Background()

	// First tick bootstraps.
	res, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Nil(t, res.Previous)
	assert.True(t, res.Saved)
	assert.True(t, res.Delta.HasChanges)
	assert.Equal(t, []string{"orders"}, res.Delta.AddedTables)
	require.Len(t, changes, 1)

	// Unchanged catalog: nothing saved, no callback.
	res, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, res.Saved)
	assert.False(t, res.Delta.HasChanges)
	assert.Len(t, changes, 1)

	// Drift.
	cat.AddTable("customers", "")
	cat.Remove("v_orders")
	res, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Equal(t, []string{"customers"}, res.Delta.AddedTables)
	assert.Equal(t, []string{"v_orders"}, res.Delta.RemovedViews)
	assert.Len(t, changes, 2)

	list, err := store.ListSnapshots(ctx, "shop", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestWatcher_Keep(t *testing.T) {
	cat, store, w := setup(t, WithKeep(1))
	ctx := context.Background()

	_, err := w.Tick(ctx)
	require.NoError(t, err)
	cat.AddTable("t2", "")
	res, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pruned)

	list, err := store.ListSnapshots(ctx, "shop", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, res.Current.ID, list[0].ID)
}

func TestWatcher_Unreachable(t *testing.T) {
	cat, _, w := setup(t)
	cat.SetDown(errors.New("connection refused"))

	_, err := w.Tick(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrCatalogUnreachable)
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("@every 15m"))
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateSchedule("@hourly"))
	assert.Error(t, ValidateSchedule("every now and then"))
}

func TestWatcher_Run(t *testing.T) {
	_, store, w := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, "@every 1h") }()

	// The immediate tick stores the bootstrap snapshot.
	require.Eventually(t, func() bool {
		_, err := store.LatestSnapshot(context.Background(), "shop")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcher_RunInvalidSchedule(t *testing.T) {
	_, _, w := setup(t)
	require.Error(t, w.Run(context.Background(), "bogus"))
}

func TestWatcher_LogsDrift(t *testing.T) {
	logger, rec := testutil.NewRecordingLogger(t)
	cat, _, w := setup(t, WithLogger(logger))
	ctx := context.Background()

	for range 2 {
		_, err := w.Tick(ctx)
		require.NoError(t, err)
	}
	cat.AddTable("refunds", "")
	_, err := w.Tick(ctx)
	require.NoError(t, err)

	var drift []testutil.Entry
	for _, e := range rec.Entries(slog.LevelInfo) {
		if e.Message == "catalog drift detected" {
			drift = append(drift, e)
		}
	}
	require.Len(t, drift, 2, "bootstrap and one change")
	assert.Equal(t, "shop", drift[1].Attrs["catalog"])
	assert.Equal(t, "[refunds]", drift[1].Attrs["added_tables"])
}
