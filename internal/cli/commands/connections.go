package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// ErrConnectionFailed is returned by connections test when a connection
// could not be reached.
var ErrConnectionFailed = errors.New("connection test failed")

// NewConnectionsCommand creates the connections command group.
func NewConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn"},
		Short:   "Inspect configured catalog connections",
	}
	cmd.AddCommand(newConnectionsListCommand())
	cmd.AddCommand(newConnectionsTestCommand())
	return cmd
}

type connectionOutput struct {
	Name    string         `json:"name"`
	Default bool           `json:"default"`
	Config  catalog.Config `json:"config"`
}

func newConnectionsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured connections (passwords masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContextWithoutCatalog(cmd)
			names := cc.Cfg.ConnectionNames()
			_, def, _ := cc.Cfg.CatalogConfig("")

			r := cc.Renderer
			if cc.JSON() {
				out := make([]connectionOutput, 0, len(names))
				for _, name := range names {
					out = append(out, connectionOutput{
						Name:    name,
						Default: name == def,
						Config:  cc.Cfg.Connections[name].Masked(),
					})
				}
				return r.JSON(out)
			}

			if len(names) == 0 {
				r.Println(r.Muted("(no connections configured)"))
				return nil
			}
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				c := cc.Cfg.Connections[name].Masked()
				marker := ""
				if name == def {
					marker = "*"
				}
				rows = append(rows, []string{marker, name, c.Driver, location(c), c.Database, c.User})
			}
			r.Table([]string{"", "Name", "Driver", "Location", "Database", "User"}, rows)
			return nil
		},
	}
}

func location(c catalog.Config) string {
	if c.Path != "" {
		return c.Path
	}
	if c.Host == "" {
		return ""
	}
	if c.Port == 0 {
		return c.Host
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}

type testOutput struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Latency string `json:"latency,omitempty"`
	Objects int    `json:"objects,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newConnectionsTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test [name]",
		Short: "Connect and count objects for one or all connections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContextWithoutCatalog(cmd)
			names := cc.Cfg.ConnectionNames()
			if len(args) == 1 {
				if _, ok := cc.Cfg.Connections[args[0]]; !ok {
					return fmt.Errorf("connection %q is not defined", args[0])
				}
				names = []string{args[0]}
			}
			if len(names) == 0 {
				return fmt.Errorf("no connections configured")
			}

			results := make([]testOutput, 0, len(names))
			failed := 0
			for _, name := range names {
				conn, _, err := cc.Cfg.CatalogConfig(name)
				if err != nil {
					return err
				}
				res := testConnection(cmd.Context(), cc, name, conn)
				if !res.OK {
					failed++
				}
				results = append(results, res)
			}

			r := cc.Renderer
			if cc.JSON() {
				if err := r.JSON(results); err != nil {
					return err
				}
			} else {
				for _, res := range results {
					if res.OK {
						r.Success(fmt.Sprintf("%s: %d objects (%s)", res.Name, res.Objects, res.Latency))
					} else {
						r.Error(fmt.Sprintf("%s: %s", res.Name, res.Error))
					}
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d", ErrConnectionFailed, failed, len(results))
			}
			return nil
		},
	}
}

func testConnection(ctx context.Context, cc *CommandContext, name string, cfg catalog.Config) testOutput {
	start := time.Now()
	conn, err := catalog.Open(ctx, cfg, cc.Logger)
	if err != nil {
		return testOutput{Name: name, Error: err.Error()}
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Ping(ctx); err != nil {
		return testOutput{Name: name, Error: err.Error()}
	}
	objects, err := conn.ListObjects(ctx)
	if err != nil {
		return testOutput{Name: name, Error: err.Error()}
	}
	return testOutput{
		Name:    name,
		OK:      true,
		Latency: time.Since(start).Round(time.Millisecond).String(),
		Objects: len(objects),
	}
}
