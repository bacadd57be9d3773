package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/cli/output"
	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// DependentsOptions holds options for the dependents command.
type DependentsOptions struct {
	Transitive bool
}

type dependentsOutput struct {
	Name       string       `json:"name"`
	Kind       catalog.Kind `json:"type"`
	Transitive bool         `json:"transitive"`
	Dependents []string     `json:"dependents"`
}

// NewDependentsCommand creates the dependents command.
func NewDependentsCommand() *cobra.Command {
	opts := &DependentsOptions{}

	cmd := &cobra.Command{
		Use:   "dependents <object>",
		Short: "Show which views read a table or view",
		Long: `List the views that read an object.

Answering this needs the whole catalog analyzed, so every view definition is
read once before the reverse lookup.`,
		Example: `  # Views that read orders directly
  viewgraph dependents orders

  # Everything downstream of orders
  viewgraph dependents orders --transitive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDependents(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Transitive, "transitive", "t", false, "Include indirect dependents")

	return cmd
}

func runDependents(cmd *cobra.Command, name string, opts *DependentsOptions) error {
	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	entry, err := cc.Builder.Resolve(ctx, name)
	if err != nil {
		return notFoundHint(cc, err)
	}
	if _, err := cc.Builder.BuildAll(ctx); err != nil {
		return err
	}

	out := dependentsOutput{Name: entry.Name, Kind: entry.Kind, Transitive: opts.Transitive}
	if opts.Transitive {
		out.Dependents = cc.Builder.Downstream(entry.Name)
	} else {
		out.Dependents = cc.Builder.DependentsOf(entry.Name)
	}
	if out.Dependents == nil {
		out.Dependents = []string{}
	}

	r := cc.Renderer
	if cc.JSON() {
		return r.JSON(out)
	}

	title := "Dependents of %s"
	if opts.Transitive {
		title = "Downstream of %s"
	}
	r.Header(1, fmt.Sprintf(title, entry.Name))
	if len(out.Dependents) == 0 {
		r.Println(r.Muted("(no dependents)"))
		return nil
	}
	r.Printf("%s", output.FormatList(out.Dependents))
	return nil
}
