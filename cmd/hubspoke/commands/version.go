package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// SetVersionInfo records the build information stamped in by goreleaser.
func SetVersionInfo(v, c, d string) {
	handlers.SetBuild(handlers.BuildInfo{Version: v, Commit: c, Date: d})
}

// Version returns the version command.
func Version() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.Version(output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format (yaml, json); one line when empty")
	return cmd
}
