package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

type columnsOutput struct {
	Name    string           `json:"name"`
	Kind    catalog.Kind     `json:"type"`
	Columns []catalog.Column `json:"columns"`
}

// NewColumnsCommand creates the columns command.
func NewColumnsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "columns <object>",
		Aliases: []string{"describe"},
		Short:   "Show the columns of a table or view",
		Long: `List the columns of a table or view in declaration order, with their
type, nullability and comment as the catalog reports them.`,
		Example: `  viewgraph columns orders
  viewgraph describe v_order_summary -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runColumns(cmd, args[0])
		},
	}
}

func runColumns(cmd *cobra.Command, name string) error {
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
	columns, err := cc.Catalog.Columns(ctx, entry.Name)
	if err != nil {
		return notFoundHint(cc, err)
	}

	r := cc.Renderer
	if cc.JSON() {
		return r.JSON(columnsOutput{Name: entry.Name, Kind: entry.Kind, Columns: columns})
	}

	r.Header(1, fmt.Sprintf("Columns of %s (%s)", entry.Name, entry.Kind))
	if len(columns) == 0 {
		r.Println(r.Muted("(no columns)"))
		return nil
	}
	rows := make([][]string, 0, len(columns))
	for _, c := range columns {
		nullable := "no"
		if c.Nullable {
			nullable = "yes"
		}
		rows = append(rows, []string{c.Name, c.Type, nullable, c.Comment})
	}
	r.Table([]string{"Name", "Type", "Nullable", "Comment"}, rows)
	return nil
}
