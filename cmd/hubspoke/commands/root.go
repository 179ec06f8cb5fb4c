// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
	"github.com/imamik/hubspoke/internal/addressing"
)

// Root returns the root command for the hubspoke CLI.
func Root() *cobra.Command {
	opts := &handlers.Options{}

	cmd := &cobra.Command{
		Use:           "hubspoke",
		Short:         "Provision hub-spoke tenant networks on Azure",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "Path to the configuration file (defaults and environment apply without one)")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	flags.BoolVar(&opts.Trace, "trace", false, "Print OpenTelemetry spans to stderr")

	cmd.AddCommand(Serve(opts))
	cmd.AddCommand(Create(opts))
	cmd.AddCommand(Status(opts))
	cmd.AddCommand(List(opts))
	cmd.AddCommand(Delete(opts))
	cmd.AddCommand(Watch(opts))
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// spokeIDArg parses and range-checks the positional spoke id.
func spokeIDArg(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id < addressing.MinSpokeID || id > addressing.MaxSpokeID {
		return 0, fmt.Errorf("spoke id must be an integer between %d and %d, got %q",
			addressing.MinSpokeID, addressing.MaxSpokeID, arg)
	}
	return id, nil
}
