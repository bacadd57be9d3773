package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/cli/output"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
	"github.com/leapstack-labs/viewgraph/pkg/lineage"
)

// DepsOptions holds options for the deps command.
type DepsOptions struct {
	Recursive bool
	Flat      bool
	Depth     int
}

// depsOutput is the JSON shape of a direct lookup.
type depsOutput struct {
	Name         string               `json:"name"`
	Kind         catalog.Kind         `json:"type"`
	Dependencies []lineage.Dependency `json:"dependencies"`
}

// upstreamOutput is the JSON shape of a flat transitive lookup.
type upstreamOutput struct {
	Name     string       `json:"name"`
	Kind     catalog.Kind `json:"type"`
	Upstream []string     `json:"upstream"`
}

// NewDepsCommand creates the deps command.
func NewDepsCommand() *cobra.Command {
	opts := &DepsOptions{}

	cmd := &cobra.Command{
		Use:   "deps <object>",
		Short: "Show what a table or view reads from",
		Long: `Display the tables and views an object depends on.

Without --recursive only direct dependencies are listed. With --recursive the
full dependency tree is printed depth-first. A name repeated on its own branch
is marked (circular) and not expanded again; the same object reached through
two different branches is expanded under both.

With --flat every object the root reads, directly or through other views, is
listed once in name order.`,
		Example: `  # Direct dependencies
  viewgraph deps v_order_summary

  # Full tree, at most three levels below the root
  viewgraph deps v_order_summary --recursive --depth 3

  # Everything upstream, deduplicated
  viewgraph deps v_order_summary --flat

  # As JSON
  viewgraph deps v_order_summary -r -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Recursive, "recursive", "r", false, "Expand dependencies recursively")
	cmd.Flags().BoolVar(&opts.Flat, "flat", false, "List every transitive dependency once, sorted")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max levels below the object when recursive (0 = unlimited)")

	cmd.MarkFlagsMutuallyExclusive("recursive", "flat")

	return cmd
}

func runDeps(cmd *cobra.Command, name string, opts *DepsOptions) error {
	if opts.Depth < 0 {
		return fmt.Errorf("--depth must not be negative")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	t := lineage.NewTraverser(cc.Builder)
	r := cc.Renderer

	if opts.Recursive {
		tree, err := t.Tree(ctx, name, opts.Depth)
		if err != nil {
			return notFoundHint(cc, err)
		}
		if cc.JSON() {
			return r.JSON(tree)
		}
		var sb strings.Builder
		if err := lineage.WriteTree(&sb, tree); err != nil {
			return err
		}
		r.Header(1, fmt.Sprintf("Dependency tree of %s", tree.Root))
		r.CodeBlock("", sb.String())
		return nil
	}

	entry, err := cc.Builder.Resolve(ctx, name)
	if err != nil {
		return notFoundHint(cc, err)
	}

	if opts.Flat {
		upstream, err := cc.Builder.Upstream(ctx, entry.Name)
		if err != nil {
			return err
		}
		if upstream == nil {
			upstream = []string{}
		}
		if cc.JSON() {
			return r.JSON(upstreamOutput{Name: entry.Name, Kind: entry.Kind, Upstream: upstream})
		}
		r.Header(1, fmt.Sprintf("Upstream of %s (%d)", entry.Name, len(upstream)))
		if len(upstream) == 0 {
			r.Println(r.Muted("(no dependencies)"))
			return nil
		}
		r.Printf("%s", output.FormatList(upstream))
		return nil
	}

	deps, err := t.Direct(ctx, entry.Name)
	if err != nil {
		return err
	}
	if cc.JSON() {
		return r.JSON(depsOutput{Name: entry.Name, Kind: entry.Kind, Dependencies: deps})
	}

	r.Header(1, fmt.Sprintf("Dependencies of %s (%s)", entry.Name, entry.Kind))
	if len(deps) == 0 {
		r.Println(r.Muted("(no dependencies)"))
		return nil
	}
	rows := make([][]string, 0, len(deps))
	for _, d := range deps {
		expandable := ""
		if d.HasChildren {
			expandable = "yes"
		}
		rows = append(rows, []string{d.Name, d.Kind.String(), expandable})
	}
	r.Table([]string{"Name", "Type", "Expandable"}, rows)
	return nil
}
