package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/internal/search"
)

// ObjectsOptions holds options for the objects command.
type ObjectsOptions struct {
	Limit int
}

// NewObjectsCommand creates the objects command.
func NewObjectsCommand() *cobra.Command {
	opts := &ObjectsOptions{}

	cmd := &cobra.Command{
		Use:     "objects [query]",
		Aliases: []string{"ls"},
		Short:   "List or search tables and views",
		Long: `List the tables and views of the catalog, or search them by name and comment.

Matches are ranked: a name starting with the query first, then names
containing it, with a smaller bonus for comments. Matching ignores case.`,
		Example: `  # First 50 objects by name
  viewgraph objects

  # Search
  viewgraph objects order --limit 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runObjects(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", search.DefaultLimit, "Max results")

	return cmd
}

func runObjects(cmd *cobra.Command, query string, opts *ObjectsOptions) error {
	if opts.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	objects, err := cc.Catalog.ListObjects(cmd.Context())
	if err != nil {
		return err
	}
	res := search.Objects(objects, query, opts.Limit)

	r := cc.Renderer
	if cc.JSON() {
		return r.JSON(res)
	}

	if len(res.Matches) == 0 {
		if query == "" {
			r.Println(r.Muted("(catalog is empty)"))
		} else {
			r.Println(r.Muted(fmt.Sprintf("(no objects match %q)", query)))
		}
		return nil
	}

	headers := []string{"Name", "Type", "Comment"}
	if query != "" {
		headers = append(headers, "Score")
	}
	rows := make([][]string, 0, len(res.Matches))
	for _, m := range res.Matches {
		row := []string{m.Name, m.Kind.String(), m.Comment}
		if query != "" {
			row = append(row, strconv.Itoa(m.Score))
		}
		rows = append(rows, row)
	}
	r.Table(headers, rows)
	if res.HasMore {
		r.Println(r.Muted(fmt.Sprintf("showing first %d; use --limit for more", len(res.Matches))))
	}
	return nil
}
