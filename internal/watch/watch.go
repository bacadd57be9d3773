// Package watch takes catalog snapshots on a cron schedule, stores them and
// reports drift against the previous stored snapshot.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// Result is the outcome of one tick.
type Result struct {
	Previous *snapshot.Snapshot
	Current  *snapshot.Snapshot
	Delta    snapshot.Delta
	Saved    bool
	Pruned   int
}

// Watcher snapshots one catalog.
type Watcher struct {
	differ   *snapshot.Differ
	store    state.Store
	keep     int
	logger   *slog.Logger
	onChange func(Result)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithKeep retains only the newest n snapshots after each save. Zero keeps all.
func WithKeep(n int) Option {
	return func(w *Watcher) { w.keep = n }
}

// WithLogger sets the watcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// OnChange registers a callback for ticks whose delta has changes.
func OnChange(fn func(Result)) Option {
	return func(w *Watcher) { w.onChange = fn }
}

// New creates a Watcher.
func New(differ *snapshot.Differ, store state.Store, opts ...Option) *Watcher {
	w := &Watcher{
		differ: differ,
		store:  store,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Tick takes a snapshot and compares it with the latest stored one. The new
// snapshot is stored when it differs from the previous one or when nothing
// was stored yet.
func (w *Watcher) Tick(ctx context.Context) (Result, error) {
	prev, err := w.store.LatestSnapshot(ctx, w.differ.CatalogID())
	if err != nil && !errors.Is(err, state.ErrSnapshotNotFound) {
		return Result{}, fmt.Errorf("failed to load previous snapshot: %w", err)
	}

	curr, err := w.differ.Take(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Previous: prev, Current: curr, Delta: snapshot.Compare(prev, curr)}
	if prev == nil || prev.Checksum != curr.Checksum {
		if err := w.store.SaveSnapshot(ctx, curr); err != nil {
			return res, fmt.Errorf("failed to save snapshot: %w", err)
		}
		res.Saved = true
		if w.keep > 0 {
			if res.Pruned, err = w.store.PruneSnapshots(ctx, curr.CatalogID, w.keep); err != nil {
				return res, fmt.Errorf("failed to prune snapshots: %w", err)
			}
		}
	}

	if res.Delta.HasChanges {
		w.logger.Info("catalog drift detected",
			slog.String("catalog", curr.CatalogID),
			slog.Any("added_tables", res.Delta.AddedTables),
			slog.Any("removed_tables", res.Delta.RemovedTables),
			slog.Any("added_views", res.Delta.AddedViews),
			slog.Any("removed_views", res.Delta.RemovedViews))
		if w.onChange != nil {
			w.onChange(res)
		}
	} else {
		w.logger.Debug("no catalog drift", slog.String("catalog", curr.CatalogID))
	}
	return res, nil
}

// ValidateSchedule checks a cron spec (five fields or a descriptor such as
// "@hourly" or "@every 15m").
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Run ticks once immediately, then on schedule until ctx is done. Tick
// failures are logged and do not stop the schedule.
func (w *Watcher) Run(ctx context.Context, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	tick := func() {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("snapshot failed", slog.String("error", err.Error()))
		}
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(schedule, tick); err != nil {
		return fmt.Errorf("failed to schedule snapshots: %w", err)
	}

	tick()
	c.Start()
	w.logger.Info("snapshot watch started",
		slog.String("catalog", w.differ.CatalogID()),
		slog.String("schedule", schedule))

	<-ctx.Done()
	// Wait for a running tick to finish.
	<-c.Stop().Done()
	w.logger.Info("snapshot watch stopped")
	return nil
}
