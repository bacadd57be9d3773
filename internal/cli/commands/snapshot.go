package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/cli/output"
	"github.com/leapstack-labs/viewgraph/internal/state"
	"github.com/leapstack-labs/viewgraph/internal/watch"
	"github.com/leapstack-labs/viewgraph/pkg/snapshot"
)

// NewSnapshotCommand creates the snapshot command group.
func NewSnapshotCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record and compare catalog inventories",
		Long: `Snapshots record which tables and views exist at a point in time.
Comparing two snapshots shows what was added or removed in between.

Snapshots are kept in the state database (state_path in the config).`,
	}

	cmd.AddCommand(newSnapshotTakeCommand())
	cmd.AddCommand(newSnapshotDiffCommand())
	cmd.AddCommand(newSnapshotListCommand())
	cmd.AddCommand(newSnapshotWatchCommand())

	return cmd
}

func newSnapshotTakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "take",
		Short: "Take a snapshot and report changes since the last one",
		Long: `Take a snapshot of the catalog and compare it with the last stored one.
The snapshot is stored when the inventory changed, or when it is the first.`,
		Args: cobra.NoArgs,
		RunE: runSnapshotTake,
	}
}

type takeOutput struct {
	Snapshot *snapshot.Snapshot `json:"snapshot"`
	Saved    bool               `json:"saved"`
	Pruned   int                `json:"pruned"`
	Delta    snapshot.Delta     `json:"delta"`
}

func runSnapshotTake(cmd *cobra.Command, _ []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w := watch.New(cc.NewDiffer(), store, watch.WithKeep(cc.Cfg.Snapshot.Keep), watch.WithLogger(cc.Logger))
	res, err := w.Tick(cmd.Context())
	if err != nil {
		return err
	}

	r := cc.Renderer
	if cc.JSON() {
		return r.JSON(takeOutput{Snapshot: res.Current, Saved: res.Saved, Pruned: res.Pruned, Delta: res.Delta})
	}

	r.Header(1, "Snapshot of "+res.Current.CatalogID)
	renderSnapshot(r, res.Current)
	r.Println("")
	switch {
	case res.Previous == nil:
		r.Success(fmt.Sprintf("first snapshot saved (%s)", res.Current.ID))
	case res.Saved:
		renderDelta(r, res.Delta)
		r.Success(fmt.Sprintf("snapshot saved (%s)", res.Current.ID))
	default:
		r.Success("no changes since " + res.Previous.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func newSnapshotDiffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "diff [from-id] [to-id]",
		Short: "Compare snapshots",
		Long: `Compare two snapshots.

With no arguments the live catalog is compared with the last stored snapshot.
With one id the live catalog is compared with that snapshot. With two ids the
stored snapshots are compared. Nothing is saved.`,
		Example: `  # What changed since the last snapshot
  viewgraph snapshot diff

  # Between two stored snapshots
  viewgraph snapshot diff 2b1f... 9c0e...`,
		Args: cobra.MaximumNArgs(2),
		RunE: runSnapshotDiff,
	}
}

type diffOutput struct {
	From  *state.Summary `json:"from"`
	To    state.Summary  `json:"to"`
	Delta snapshot.Delta `json:"delta"`
}

func runSnapshotDiff(cmd *cobra.Command, args []string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	var from, to *snapshot.Snapshot

	switch len(args) {
	case 2:
		if from, err = store.GetSnapshot(ctx, args[0]); err != nil {
			return err
		}
		if to, err = store.GetSnapshot(ctx, args[1]); err != nil {
			return err
		}
	default:
		if to, err = cc.NewDiffer().Take(ctx); err != nil {
			return err
		}
		if len(args) == 1 {
			from, err = store.GetSnapshot(ctx, args[0])
		} else {
			from, err = store.LatestSnapshot(ctx, to.CatalogID)
			if errors.Is(err, state.ErrSnapshotNotFound) {
				err = nil
			}
		}
		if err != nil {
			return err
		}
	}

	delta := snapshot.Compare(from, to)

	r := cc.Renderer
	if cc.JSON() {
		out := diffOutput{To: state.SummaryOf(to), Delta: delta}
		if from != nil {
			s := state.SummaryOf(from)
			out.From = &s
		}
		return r.JSON(out)
	}

	r.Header(1, "Snapshot diff for "+to.CatalogID)
	if from == nil {
		r.KeyValue("From", "(nothing stored)")
	} else {
		r.KeyValue("From", describeSnapshot(from))
	}
	r.KeyValue("To", describeSnapshot(to))
	r.Println("")
	if !delta.HasChanges {
		r.Success("no changes")
		return nil
	}
	renderDelta(r, delta)
	return nil
}

func newSnapshotListCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotList(cmd, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Max snapshots to list (0 = all)")
	return cmd
}

func runSnapshotList(cmd *cobra.Command, limit int) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	list, err := store.ListSnapshots(cmd.Context(), cc.Catalog.ID(), limit)
	if err != nil {
		return err
	}

	r := cc.Renderer
	if cc.JSON() {
		if list == nil {
			list = []state.Summary{}
		}
		return r.JSON(list)
	}

	if len(list) == 0 {
		r.Println(r.Muted("(no snapshots stored; run 'viewgraph snapshot take')"))
		return nil
	}
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			s.ID,
			s.Timestamp.Local().Format(time.DateTime),
			strconv.Itoa(s.TotalCount),
			shortChecksum(s.Checksum),
		})
	}
	r.Table([]string{"ID", "Taken", "Objects", "Checksum"}, rows)
	return nil
}

func newSnapshotWatchCommand() *cobra.Command {
	var schedule string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Take snapshots on a schedule and report drift",
		Long: `Take a snapshot now and then on a cron schedule until interrupted.
Every snapshot that differs from the previous one is stored and its changes
are printed.

Schedules use five cron fields or descriptors such as @hourly or @every 15m.`,
		Example: `  viewgraph snapshot watch --schedule "@every 10m"
  viewgraph snapshot watch --schedule "0 * * * *"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSnapshotWatch(cmd, schedule)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule (default: snapshot.schedule from config)")
	return cmd
}

func runSnapshotWatch(cmd *cobra.Command, schedule string) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if schedule == "" {
		schedule = cc.Cfg.Snapshot.Schedule
	}
	if err := watch.ValidateSchedule(schedule); err != nil {
		return err
	}

	store, err := cc.OpenStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	r := cc.Renderer
	w := watch.New(cc.NewDiffer(), store,
		watch.WithKeep(cc.Cfg.Snapshot.Keep),
		watch.WithLogger(cc.Logger),
		watch.OnChange(func(res watch.Result) {
			if cc.JSON() {
				_ = r.JSON(res.Delta)
				return
			}
			r.Header(2, fmt.Sprintf("%s: %d change(s)", res.Delta.Timestamp.Local().Format(time.DateTime), res.Delta.Changes()))
			renderDelta(r, res.Delta)
		}))

	if !cc.JSON() {
		r.Println(r.Muted(fmt.Sprintf("watching %s (%s); press Ctrl+C to stop", cc.Catalog.ID(), schedule)))
	}
	return w.Run(cmd.Context(), schedule)
}

func renderSnapshot(r *output.Renderer, s *snapshot.Snapshot) {
	r.KeyValue("ID", s.ID)
	r.KeyValue("Taken", s.Timestamp.Local().Format(time.DateTime))
	r.KeyValue("Tables", strconv.Itoa(len(s.Tables)))
	r.KeyValue("Views", strconv.Itoa(len(s.Views)))
	r.KeyValue("Checksum", shortChecksum(s.Checksum))
}

func renderDelta(r *output.Renderer, d snapshot.Delta) {
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		r.Header(3, fmt.Sprintf("%s (%d)", title, len(items)))
		r.Printf("%s", output.FormatList(items))
	}
	section("Added tables", d.AddedTables)
	section("Removed tables", d.RemovedTables)
	section("Added views", d.AddedViews)
	section("Removed views", d.RemovedViews)
}

func describeSnapshot(s *snapshot.Snapshot) string {
	return fmt.Sprintf("%s (%s, %d objects)", s.ID, s.Timestamp.Local().Format(time.DateTime), s.TotalCount)
}

func shortChecksum(sum string) string {
	return sum[:min(12, len(sum))]
}
