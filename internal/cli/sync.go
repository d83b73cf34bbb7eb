package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/queue"
	"github.com/roach88/tillsync/internal/reconcile"
)

// NewRetryCommand creates the retry command.
func NewRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Send queued sales now",
		Long: `Send queued sales now, oldest first.

The drain stops at the first sale the order service does not accept, so
later sales never overtake an earlier one. Exits with status 1 if any sale
is still queued afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := rootOpts.openSession(ctx, false)
			if err != nil {
				return err
			}
			defer closeSession(s)

			report := s.RetryQueue(ctx)
			if err := rootOpts.formatter(cmd).Success(drainOutput(report)); err != nil {
				return err
			}
			if report.Remaining > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d sale(s) still queued", report.Remaining))
			}
			return nil
		},
	}
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the latest status of unresolved sales",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			s, err := rootOpts.openSession(ctx, false)
			if err != nil {
				return err
			}
			defer closeSession(s)

			return rootOpts.formatter(cmd).Success(pollOutput(s.RefreshOrderStatuses(ctx)))
		},
	}
}

type drainOutput queue.DrainReport

func (d drainOutput) Text() string {
	if d.Skipped {
		return "A drain is already running.\n"
	}
	if d.Attempted == 0 {
		return "Nothing to send.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Sent %d of %d attempted; %d still queued\n", d.Submitted, d.Attempted, d.Remaining)
	if d.LastError != "" {
		fmt.Fprintf(&b, "  stopped on: %s\n", d.LastError)
	}
	return b.String()
}

type pollOutput reconcile.PollReport

func (p pollOutput) Text() string {
	if p.Checked == 0 {
		return "No unresolved sales.\n"
	}
	return fmt.Sprintf("Checked %d sale(s): %d matched, %d failed\n", p.Checked, p.Matched, p.Failed)
}
