package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/trackrelay/internal/store"
)

// LinkOptions holds flags for the link subcommands.
type LinkOptions struct {
	*RootOptions
	ChatID     string
	Filter     string
	Unlink     bool
	ChatUserID string
}

func newLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link",
		Short: "Link projects to chats and users to chat accounts",
	}

	project := &cobra.Command{
		Use:   "project <id>",
		Short: "Relay a project into a chat",
		Long: `Relay a project into a chat. A project linked for the first time only
reports activity from now on.

Example:
  trackrelay link project PRJ --chat -1001234567890
  trackrelay link project PRJ --chat -1001234567890 --filter "#Unresolved"
  trackrelay link project PRJ --unlink`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts.RootOptions, needNone)
			if err != nil {
				return err
			}
			defer e.Close()

			chatID := opts.ChatID
			if opts.Unlink {
				chatID = ""
			} else if chatID == "" {
				chatID, err = opts.Prompter.Input("Chat ID", "Telegram chat that receives "+args[0]+" activity", false)
				if err != nil {
					return WrapExitError(ExitCommandError, "reading chat id", err)
				}
			}

			if err := e.store.LinkProject(cmd.Context(), args[0], chatID, opts.Filter); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitCommandError, "unknown project (run 'trackrelay bootstrap' first)", err)
				}
				return WrapExitError(ExitCommandError, "linking project", err)
			}

			if chatID == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s unlinked.\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Project %s relays to chat %s.\n", args[0], chatID)
			}
			return nil
		},
	}
	project.Flags().StringVar(&opts.ChatID, "chat", "", "Telegram chat id")
	project.Flags().StringVar(&opts.Filter, "filter", "", "extra tracker search query")
	project.Flags().BoolVar(&opts.Unlink, "unlink", false, "stop relaying the project")

	user := &cobra.Command{
		Use:   "user <login>",
		Short: "Mention a tracker user by their Telegram account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts.RootOptions, needNone)
			if err != nil {
				return err
			}
			defer e.Close()

			chatUserID := opts.ChatUserID
			if chatUserID == "" {
				chatUserID, err = opts.Prompter.Input("Telegram user ID", "Numeric Telegram id of "+args[0], false)
				if err != nil {
					return WrapExitError(ExitCommandError, "reading chat user id", err)
				}
			}

			if err := e.store.LinkUser(cmd.Context(), args[0], chatUserID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return WrapExitError(ExitCommandError, "unknown user (run 'trackrelay bootstrap' first)", err)
				}
				return WrapExitError(ExitCommandError, "linking user", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is mentioned as Telegram user %s.\n", args[0], chatUserID)
			return nil
		},
	}
	user.Flags().StringVar(&opts.ChatUserID, "chat-user", "", "Telegram user id")

	cmd.AddCommand(project, user)
	return cmd
}
