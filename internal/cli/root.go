package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tillsync/internal/config"
	"github.com/roach88/tillsync/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string

	// SessionOptions are appended when a command opens a session (for testing).
	SessionOptions []session.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tillsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tillsync",
		Short: "Offline-tolerant order submission for point-of-sale tills",
		Long: `tillsync records sales at the till and gets them to the order service.

Sales are submitted immediately when the order service is reachable and
queued locally when it is not. Queued sales are replayed oldest first once
connectivity returns, and the status of recent sales is kept fresh from the
order service's push feed and by polling.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			configureLogging(opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(NewSubmitCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewConformanceCommand(opts))

	return cmd
}

// configureLogging sends structured logs to stderr, at debug level when
// verbose.
func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), Verbose: o.Verbose}
}

// loadConfig reads the config file and environment, then applies --db.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if o.Database != "" {
		cfg.Database = o.Database
	}
	return cfg, nil
}

// openSession opens a session over the configured database. One-shot
// commands pass live=false to skip the prober and the push channel.
func (o *RootOptions) openSession(ctx context.Context, live bool, extra ...session.Option) (*session.Session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	var opts []session.Option
	if !live {
		opts = append(opts, session.WithoutProbe(), session.WithoutPush())
	}
	opts = append(opts, extra...)
	opts = append(opts, o.SessionOptions...)
	s, err := session.Open(ctx, cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	return s, nil
}

func closeSession(s *session.Session) {
	if err := s.Close(); err != nil {
		slog.Error("error closing session", "error", err)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
