package commands

import (
	"github.com/spf13/cobra"
)

// Completion returns the completion command for shell autocompletion.
func Completion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for hubspoke.

To load completions:

Bash:
  $ source <(hubspoke completion bash)
  # Linux, for every session:
  $ hubspoke completion bash > /etc/bash_completion.d/hubspoke

Zsh:
  # Enable completion once if it is not already:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc
  $ hubspoke completion zsh > "${fpath[1]}/_hubspoke"

Fish:
  $ hubspoke completion fish | source
  $ hubspoke completion fish > ~/.config/fish/completions/hubspoke.fish

PowerShell:
  PS> hubspoke completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}
