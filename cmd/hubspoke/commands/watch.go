package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// Watch returns the watch command.
func Watch(opts *handlers.Options) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch <spoke-id>",
		Short: "Follow a spoke until it settles",
		Long: `Watch polls the stored record of a spoke and shows its steps, resources and
rollback errors until the spoke is completed, rolled back or failed for good.

Watch reads the same store the API server writes to, so a running
"hubspoke serve" can be followed from another terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := spokeIDArg(args[0])
			if err != nil {
				return err
			}
			return handlers.Watch(cmd.Context(), *opts, id, interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval")

	return cmd
}
