package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// Serve returns the serve command.
func Serve(opts *handlers.Options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve runs the HTTP API and the rollback workers.

Endpoints:
  POST   /api/v1/spokes              create a spoke (blocks until the workflow ends)
  GET    /api/v1/spokes              list spokes (?status=, ?limit=)
  GET    /api/v1/spokes/stats        counts per status
  GET    /api/v1/spokes/{id}         stored record and live resource view
  DELETE /api/v1/spokes/{id}         tear a spoke down (?purge=true removes the record)
  GET    /health
  GET    /metrics

Rollbacks interrupted by an earlier shutdown are queued again at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Serve(cmd.Context(), *opts, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")

	return cmd
}
