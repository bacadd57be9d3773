package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/cli/output"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
)

// ErrCyclesFound is returned by scan --fail-on-cycles when views depend on
// each other circularly.
var ErrCyclesFound = errors.New("circular view dependencies found")

// ScanOptions holds options for the scan command.
type ScanOptions struct {
	FailOnCycles bool
}

type scanOutput struct {
	Catalog string `json:"catalog"`
	*lineage.BuildStats
}

// NewScanCommand creates the scan command.
func NewScanCommand() *cobra.Command {
	opts := &ScanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Analyze every view in the catalog",
		Long: `Read every view definition and build the whole dependency graph.

The summary reports object and edge counts, views whose definitions could not
be read, views that read nothing, tables nothing reads, and groups of views
that depend on each other circularly. An acyclic catalog is also broken into
dependency levels: level 0 reads nothing, level N reads only lower levels.`,
		Example: `  # Summary of the default connection
  viewgraph scan

  # Fail in CI when circular definitions exist
  viewgraph scan --fail-on-cycles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScan(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnCycles, "fail-on-cycles", false, "Exit with an error when cycles are found")

	return cmd
}

func runScan(cmd *cobra.Command, opts *ScanOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := cc.Builder.BuildAll(cmd.Context())
	if err != nil {
		return err
	}

	r := cc.Renderer
	if cc.JSON() {
		if err := r.JSON(scanOutput{Catalog: cc.Catalog.ID(), BuildStats: stats}); err != nil {
			return err
		}
	} else {
		renderScan(r, cc.Catalog.ID(), stats)
	}

	if opts.FailOnCycles && len(stats.Cycles) > 0 {
		return fmt.Errorf("%w: %d group(s)", ErrCyclesFound, len(stats.Cycles))
	}
	return nil
}

func renderScan(r *output.Renderer, catalogID string, stats *lineage.BuildStats) {
	r.Header(1, "Scan of "+catalogID)
	r.KeyValue("Objects", strconv.Itoa(stats.Objects))
	r.KeyValue("Tables", strconv.Itoa(stats.Tables))
	r.KeyValue("Views", strconv.Itoa(stats.Views))
	r.KeyValue("Edges", strconv.Itoa(stats.Edges))
	r.KeyValue("Unresolved names", strconv.Itoa(stats.Unresolved))
	r.KeyValue("Duration", stats.Duration.Round(time.Millisecond).String())
	r.Println("")

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		r.Header(2, fmt.Sprintf("%s (%d)", title, len(items)))
		r.Printf("%s", output.FormatList(items))
		r.Println("")
	}
	section("Unreadable definitions", stats.Failed)
	section("Views reading nothing", stats.Orphans)
	section("Unused tables", stats.Unused)

	if len(stats.Cycles) == 0 {
		levels := make([]string, len(stats.Levels))
		for i, level := range stats.Levels {
			levels[i] = fmt.Sprintf("level %d: %s", i, strings.Join(level, ", "))
		}
		section("Dependency levels", levels)
		r.Success("no circular dependencies")
		return
	}
	cycles := make([]string, len(stats.Cycles))
	for i, c := range stats.Cycles {
		cycles[i] = strings.Join(c, ", ")
	}
	section("Circular groups", cycles)
	r.Warning(fmt.Sprintf("%d circular group(s) found", len(stats.Cycles)))
}
