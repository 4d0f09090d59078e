// Package cli implements the trackrelay command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/nhle/trackrelay/internal/credential"
	"github.com/nhle/trackrelay/internal/model"
)

// RootOptions holds global flags and the injectable dependencies shared by
// all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool

	// OpenVault opens the credential store. Defaults to the system keyring.
	OpenVault func() (*credential.Vault, error)

	// Prompter asks for values missing from flags. Defaults to huh forms.
	Prompter Prompter
}

// NewRootCommand creates the root command for the trackrelay CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{
		OpenVault: credential.Open,
		Prompter:  huhPrompter{},
	})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trackrelay",
		Short: "Relay YouTrack activity into Telegram chats",
		Long: `trackrelay polls YouTrack for new issues, comments and field changes
and posts them to the Telegram chat linked to each project.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", model.DefaultConfigPath(), "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newBootstrapCommand(opts))
	cmd.AddCommand(newProjectsCommand(opts))
	cmd.AddCommand(newLinkCommand(opts))
	cmd.AddCommand(newAuthCommand(opts))

	return cmd
}
