package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// Status returns the status command.
func Status(opts *handlers.Options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status <spoke-id>",
		Short: "Show the record and live resources of a spoke",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := spokeIDArg(args[0])
			if err != nil {
				return err
			}
			return handlers.Status(cmd.Context(), *opts, id, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", handlers.OutputYAML, "Output format (yaml, json)")

	return cmd
}
