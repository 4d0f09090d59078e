package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	relaysync "github.com/nhle/trackrelay/internal/sync"
)

func newBootstrapCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Import projects and users from the tracker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, needTracker)
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := relaysync.Bootstrap(cmd.Context(), e.tracker(), e.store, e.logger)
			if err != nil {
				return WrapExitError(ExitFailure, "bootstrap failed", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d projects and %d users.\n", res.Projects, res.Users)
			return nil
		},
	}
}
