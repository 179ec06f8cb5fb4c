package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// List returns the list command.
func List(opts *handlers.Options) *cobra.Command {
	var (
		status string
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List spokes",
		Example: `  hubspoke list
  hubspoke list --status failed
  hubspoke list --status completed --limit 10 -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.List(cmd.Context(), *opts, status, limit, output)
		},
	}

	f := cmd.Flags()
	f.StringVar(&status, "status", "", "Only show spokes in this status")
	f.IntVar(&limit, "limit", 0, "Maximum number of spokes to show (0 for all)")
	f.StringVarP(&output, "output", "o", "", "Output format (yaml, json); a table when empty")

	return cmd
}
