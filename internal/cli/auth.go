package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/trackrelay/internal/credential"
	"github.com/nhle/trackrelay/internal/model"
)

func newAuthCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "auth tracker|chat",
		Short:     "Store a tracker or chat secret in the system keyring",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tracker", "chat"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "loading config", err)
			}

			key, title, desc, err := secretFor(args[0], cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "choosing secret", err)
			}

			secret, err := opts.Prompter.Input(title, desc, true)
			if err != nil {
				return WrapExitError(ExitCommandError, "reading secret", err)
			}

			vault, err := opts.OpenVault()
			if err != nil {
				return WrapExitError(ExitCommandError, "opening keyring", err)
			}
			if err := vault.Set(key, secret); err != nil {
				return WrapExitError(ExitCommandError, "storing secret", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the keyring.\n", key)
			return nil
		},
	}
}

// secretFor picks the keyring key and prompt for a target. A tracker with a
// configured login uses a password; otherwise a permanent token.
func secretFor(target string, cfg *model.AppConfig) (key, title, desc string, err error) {
	switch target {
	case "tracker":
		if cfg.Tracker.Login != "" {
			return credential.KeyTrackerPassword, "YouTrack password",
				"Password for " + cfg.Tracker.Login, nil
		}
		return credential.KeyTrackerToken, "YouTrack permanent token",
			"Profile > Account Security > New token", nil
	case "chat":
		return credential.KeyChatToken, "Telegram bot token",
			"Token issued by @BotFather", nil
	default:
		return "", "", "", fmt.Errorf("unknown target %q: must be tracker or chat", target)
	}
}
