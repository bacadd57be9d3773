package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/pkg/export"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	Format string
	Depth  int
	Out    string
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	opts := &ExportOptions{}

	cmd := &cobra.Command{
		Use:   "export <object>",
		Short: "Export a dependency graph as text, diagram or image",
		Long: `Export the dependency graph below an object.

Unlike deps --recursive, every object is expanded once per export: a second
occurrence is kept as a reference leaf, so shared dependencies appear once and
the output stays proportional to the graph size.

Formats: tree, mermaid, dot, png, svg, json, yaml. Images need the Graphviz
dot binary (graphviz.path in the config).`,
		Example: `  # Mermaid flowchart to stdout
  viewgraph export v_order_summary --format mermaid

  # SVG written to v_order_summary_dependencies.svg
  viewgraph export v_order_summary --format svg

  # Two levels as YAML into a chosen file
  viewgraph export v_order_summary -f yaml --depth 2 --out deps.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "tree", "Export format ("+formatNames()+")")
	cmd.Flags().IntVar(&opts.Depth, "depth", 0, "Max levels below the object (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Output file (default: stdout for text formats, <object>_dependencies.<ext> for images)")

	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return strings.Split(formatNames(), "|"), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func formatNames() string {
	names := make([]string, len(export.Formats))
	for i, f := range export.Formats {
		names[i] = string(f)
	}
	return strings.Join(names, "|")
}

func runExport(cmd *cobra.Command, name string, opts *ExportOptions) error {
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return err
	}
	if opts.Depth < 0 {
		return fmt.Errorf("--depth must not be negative")
	}

	cc, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := cc.NewExporter().Export(cmd.Context(), export.Request{
		Root:     name,
		MaxDepth: opts.Depth,
		Format:   format,
	})
	if err != nil {
		return notFoundHint(cc, err)
	}

	out := opts.Out
	if out == "" && format.IsImage() {
		out = res.Filename()
	}
	if out == "" || out == "-" {
		_, err := cmd.OutOrStdout().Write(res.Data)
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(out, res.Data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	cc.Renderer.Success(fmt.Sprintf("wrote %s (%d objects, %d edges)", out, res.Nodes, res.Edges))
	return nil
}
