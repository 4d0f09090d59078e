package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	relaysync "github.com/nhle/trackrelay/internal/sync"
)

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Sweep every linked project once",
		Long: `Run a single sweep of every linked project and print a summary.
Exits with status 1 when any project failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(opts, needTracker|needChat)
			if err != nil {
				return err
			}
			defer e.Close()

			t := e.tracker()
			engine := relaysync.NewEngine(e.store, e.sweeper(t), e.cfg.Sync.PollInterval(), e.logger)
			report, err := engine.Tick(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "sweep failed", err)
			}

			out := cmd.OutOrStdout()
			for _, p := range report.Projects {
				if p.Err != nil {
					fmt.Fprintf(out, "%-12s FAILED  %v\n", p.ProjectID, p.Err)
					continue
				}
				fmt.Fprintf(out, "%-12s ok      %d issues, %d sent, %d retrying\n",
					p.ProjectID, p.Result.Issues, p.Result.Delivered, p.Result.Failed)
			}
			fmt.Fprintf(out, "%d projects, %d notifications, %s\n",
				len(report.Projects), report.Delivered(), report.Duration.Round(time.Millisecond))

			if n := report.Failed(); n > 0 {
				return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d project(s) failed", n)}
			}
			return nil
		},
	}
}
