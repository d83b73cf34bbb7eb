package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/order"
)

// NewQueueCommand creates the queue command.
func NewQueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "List sales waiting to be sent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openSession(commandContext(cmd), false)
			if err != nil {
				return err
			}
			defer closeSession(s)
			return rootOpts.formatter(cmd).Success(queueOutput(s.QueuedOrders()))
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recent sales, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rootOpts.openSession(commandContext(cmd), false)
			if err != nil {
				return err
			}
			defer closeSession(s)
			return rootOpts.formatter(cmd).Success(historyOutput(s.RecentOrders()))
		},
	}
}

type queueOutput []order.QueuedOrder

func (q queueOutput) Text() string {
	if len(q) == 0 {
		return "No queued sales.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d queued sale(s):\n", len(q))
	for _, it := range q {
		fmt.Fprintf(&b, "  %s  %8.2f %-6s  queued %s  attempts %d\n",
			it.TempID, it.Payload.Total, it.Payload.PaymentMethod,
			it.CreatedAt.Local().Format(time.DateTime), it.Attempts)
		if it.LastError != "" {
			fmt.Fprintf(&b, "      last error: %s\n", it.LastError)
		}
	}
	return b.String()
}

type historyOutput []order.HistoryEntry

func (h historyOutput) Text() string {
	if len(h) == 0 {
		return "No recent sales.\n"
	}
	var b strings.Builder
	for _, e := range h {
		payment := e.PaymentStatus
		if payment == "" {
			payment = "-"
		}
		fmt.Fprintf(&b, "%-40s  %-18s  %-10s  %8.2f %s\n", e.Key(), e.Status, payment, e.Total, e.PaymentMethod)
		if e.PaymentURL != "" {
			fmt.Fprintf(&b, "      pay at: %s\n", e.PaymentURL)
		}
		if e.Note != "" {
			fmt.Fprintf(&b, "      note: %s\n", e.Note)
		}
	}
	return b.String()
}
