package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// Delete returns the delete command.
func Delete(opts *handlers.Options) *cobra.Command {
	var (
		purge  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "delete <spoke-id>",
		Short: "Tear a spoke down",
		Long: `Delete removes every resource of a spoke in dependency order: gateway routing
rule and backend pool, VM, OS disk, NIC, hub peering and finally the VNet.

Deleting a spoke that is already rolled back changes nothing. With --purge the
stored record of a settled spoke is removed instead; cloud resources are not
touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := spokeIDArg(args[0])
			if err != nil {
				return err
			}
			return handlers.Delete(cmd.Context(), *opts, id, purge, output)
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Remove the stored record instead of tearing down")
	cmd.Flags().StringVarP(&output, "output", "o", handlers.OutputYAML, "Output format (yaml, json)")

	return cmd
}
