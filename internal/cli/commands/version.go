package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/viewgraph/pkg/catalog"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Drivers   []string `json:"drivers"`
}

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, buildDate string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display viewgraph version, build information and the compiled-in catalog drivers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := BuildInfo{
				Version:   version,
				Commit:    commit,
				BuildDate: buildDate,
				GoVersion: runtime.Version(),
				Drivers:   catalog.ListDrivers(),
			}
			cc := NewCommandContextWithoutCatalog(cmd)
			if cc.JSON() {
				return cc.Renderer.JSON(info)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "viewgraph v%s (%s, %s)\n", info.Version, info.Commit, info.BuildDate)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s, drivers: %v\n", info.GoVersion, info.Drivers)
			return nil
		},
	}
}
