package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imamik/hubspoke/cmd/hubspoke/handlers"
)

// Create returns the create command.
func Create(opts *handlers.Options) *cobra.Command {
	var create handlers.CreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Provision a spoke",
		Long: `Create provisions a spoke: a VNet with four subnets, a NIC and a Linux VM,
peering to the hub and an application gateway backend pool with a routing rule.

The address space, subnets and resource names are derived from the spoke id
and client name unless the spoke file sets them. If a step fails, everything
created so far is rolled back before the command returns.

Example:
  hubspoke create --spoke-id 7 --client acme --ssh-key ~/.ssh/id_ed25519.pub
  hubspoke create -f spoke.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if create.File == "" && (create.SpokeID == 0 || create.ClientName == "" || create.SSHKeyFile == "") {
				return fmt.Errorf("either --file or all of --spoke-id, --client and --ssh-key are required")
			}
			return handlers.Create(cmd.Context(), *opts, create)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&create.File, "file", "f", "", "Spoke configuration file (YAML or JSON)")
	f.IntVar(&create.SpokeID, "spoke-id", 0, "Spoke id (1-254)")
	f.StringVar(&create.ClientName, "client", "", "Client name")
	f.StringVar(&create.SSHKeyFile, "ssh-key", "", "Path to the SSH public key for the VM")
	f.StringVar(&create.VMSize, "vm-size", "", "VM size (defaults to spoke.vm_size)")
	f.StringVar(&create.AdminUsername, "admin-username", "", "VM admin user (defaults to spoke.admin_username)")
	f.StringVarP(&create.Output, "output", "o", handlers.OutputYAML, "Output format (yaml, json)")

	return cmd
}
