package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/order"
	"github.com/roach88/tillsync/internal/session"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	File    string
	Offline bool
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit [draft-json]",
		Short: "Record a sale",
		Long: `Record a sale from a JSON draft.

The sale is sent to the order service right away when it is reachable, and
queued locally otherwise. Either way the sale is safe once this command
returns; only an invalid draft is rejected.

Example:
  tillsync submit '{"items":[{"product_id":"p1","quantity":2,"unit_price":5,"line_total":10}],"payment_method":"cash","total":10}'
  tillsync submit --file sale.json --offline`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the draft from a file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Offline, "offline", false, "queue the sale without contacting the order service")

	return cmd
}

func runSubmit(opts *SubmitOptions, args []string, cmd *cobra.Command) error {
	raw, err := readDraft(opts.File, args, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read draft", err)
	}
	var draft order.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return WrapExitError(ExitCommandError, "invalid draft JSON", err)
	}

	ctx := commandContext(cmd)
	s, err := opts.openSession(ctx, false)
	if err != nil {
		return err
	}
	defer closeSession(s)

	out := opts.formatter(cmd)
	res, err := s.SubmitOrder(ctx, draft, session.SubmitOptions{ForceOffline: opts.Offline})
	if err != nil {
		var ve *order.ValidationError
		if errors.As(err, &ve) {
			_ = out.Error(string(ve.Code), ve.Message, nil)
			return WrapExitError(ExitFailure, "sale rejected", err)
		}
		return WrapExitError(ExitFailure, "submit failed", err)
	}
	return out.Success(submitOutput{res})
}

func readDraft(file string, args []string, stdin io.Reader) ([]byte, error) {
	switch {
	case file == "-":
		return io.ReadAll(stdin)
	case file != "":
		return os.ReadFile(file)
	case len(args) == 1:
		return []byte(args[0]), nil
	default:
		return nil, errors.New("provide the draft as an argument or with --file")
	}
}

type submitOutput struct {
	session.SubmitResult
}

func (o submitOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.SubmitResult)
}

func (o submitOutput) Text() string {
	var b strings.Builder
	if o.Status == session.StatusQueued {
		fmt.Fprintf(&b, "Queued %s (%d waiting)\n", o.TempID, o.QueuedCount)
		return b.String()
	}
	fmt.Fprintf(&b, "Submitted %s as %s\n", o.TempID, o.Order.ID)
	if o.Payment != nil {
		fmt.Fprintf(&b, "  payment: %s\n", o.Payment.Status)
		if o.Payment.PaymentURL != "" {
			fmt.Fprintf(&b, "  pay at:  %s\n", o.Payment.PaymentURL)
		}
	}
	if o.PaymentError != "" {
		fmt.Fprintf(&b, "  payment error: %s\n", o.PaymentError)
	}
	return b.String()
}
