package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the till in sync until interrupted",
		Long: `Run a till session in the foreground.

While running, the session probes the order service for reachability,
replays queued sales when connectivity returns, and keeps recent sales up to
date from the status push feed and by polling. On Ctrl-C it stops the
background loops and waits for any sale that is mid-submission.

Example:
  tillsync run --config till.yaml
  tillsync run --db /var/lib/till/state.db --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(rootOpts, cmd)
		},
	}
}

func runSession(opts *RootOptions, cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	s, err := opts.openSession(ctx, true)
	if err != nil {
		return err
	}
	defer closeSession(s)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	changes, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Start(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to start session", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Till session running with %d queued sale(s).\n", len(s.QueuedOrders()))
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	for {
		select {
		case <-ctx.Done():
			slog.Info("session stopping", "queued", len(s.QueuedOrders()))
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			slog.Debug("till state changed",
				"online", s.IsOnline(),
				"syncing", s.IsSyncing(),
				"queued", len(s.QueuedOrders()),
			)
		}
	}
}
