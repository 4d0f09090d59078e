package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	relaysync "github.com/nhle/trackrelay/internal/sync"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SkipBootstrap bool
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Relay tracker activity until interrupted",
		Long: `Import projects and users, then sweep every linked project on the
configured interval until SIGINT or SIGTERM. The sweep in progress finishes
before the process exits. SIGHUP starts a sweep immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipBootstrap, "skip-bootstrap", false, "do not import projects and users on start")

	return cmd
}

func runRelay(parent context.Context, opts *RunOptions) error {
	e, err := loadEnv(opts.RootOptions, needTracker|needChat)
	if err != nil {
		return err
	}
	defer e.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	t := e.tracker()
	engine := relaysync.NewEngine(e.store, e.sweeper(t), e.cfg.Sync.PollInterval(), e.logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	go func() {
		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					e.logger.Info("received SIGHUP, sweeping now")
					engine.Trigger()
					continue
				}
				e.logger.Info("received signal, finishing current sweep", "signal", sig)
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if !opts.SkipBootstrap {
		if _, err := relaysync.Bootstrap(ctx, t, e.store, e.logger); err != nil {
			if ctx.Err() != nil {
				e.logger.Info("relay stopped during bootstrap")
				return nil
			}
			return WrapExitError(ExitFailure, "bootstrap failed", err)
		}
	}

	if err := engine.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}
	e.logger.Info("relay stopped")
	return nil
}
