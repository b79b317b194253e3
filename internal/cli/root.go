package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/sagalog/internal/config"
	"github.com/roach88/sagalog/internal/store"
	"github.com/roach88/sagalog/internal/tracing"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config is the environment configuration with flag overrides applied.
	// It is resolved before any subcommand runs.
	Config config.Config

	// Repository, when set, is used instead of opening the configured
	// backend (for testing).
	Repository store.Repository

	shutdownTracing func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sagalog CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	var flags config.Config

	cmd := &cobra.Command{
		Use:   "sagalog",
		Short: "sagalog - durable saga steps over an event log",
		Long: `Inspect and drive sagas whose steps are recorded in an append-only event log.

Every effect step writes a precall event before it runs and a call event
with its outcome afterwards. A re-run saga replays recorded outcomes,
probes steps that were interrupted, and executes only what never started.

Settings come from SAGALOG_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}
			opts.Config = cfg
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return opts.teardown(cmd.Context())
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	pf.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	pf.StringVar(&flags.Backend, "backend", "", "event repository: sqlite, memory, postgres or redis (env SAGALOG_BACKEND)")
	pf.StringVar(&flags.SQLitePath, "db", "", "path to SQLite database (env SAGALOG_SQLITE_PATH)")
	pf.StringVar(&flags.PostgresDSN, "dsn", "", "Postgres connection string (env SAGALOG_POSTGRES_DSN)")
	pf.StringVar(&flags.RedisAddr, "redis-addr", "", "Redis address (env SAGALOG_REDIS_ADDR)")
	pf.StringVar(&flags.RedisPrefix, "redis-prefix", "", "Redis key prefix (env SAGALOG_REDIS_PREFIX)")
	pf.StringVar(&flags.OTLPEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector for traces (env SAGALOG_OTLP_ENDPOINT)")

	cmd.AddCommand(NewInstancesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))

	return cmd
}

// resolveConfig reads the environment and applies the flags the user set.
func resolveConfig(cmd *cobra.Command, flags config.Config) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	pf := cmd.Flags()
	if pf.Changed("backend") {
		cfg.Backend = flags.Backend
	}
	if pf.Changed("db") {
		cfg.SQLitePath = flags.SQLitePath
	}
	if pf.Changed("dsn") {
		cfg.PostgresDSN = flags.PostgresDSN
	}
	if pf.Changed("redis-addr") {
		cfg.RedisAddr = flags.RedisAddr
	}
	if pf.Changed("redis-prefix") {
		cfg.RedisPrefix = flags.RedisPrefix
	}
	if pf.Changed("otlp-endpoint") {
		cfg.OTLPEndpoint = flags.OTLPEndpoint
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup installs the default logger and the tracer provider.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	level, err := config.ParseLevel(o.Config.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	shutdown, err := tracing.Init(commandContext(cmd), tracing.Config{
		ServiceName: "sagalog",
		Endpoint:    o.Config.OTLPEndpoint,
		Insecure:    o.Config.OTLPInsecure,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize tracing", err)
	}
	o.shutdownTracing = shutdown
	return nil
}

func (o *RootOptions) teardown(ctx context.Context) error {
	if o.shutdownTracing == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := o.shutdownTracing(ctx); err != nil {
		slog.Warn("tracing shutdown failed", "error", err)
	}
	o.shutdownTracing = nil
	return nil
}

// formatter returns an OutputFormatter writing to the command's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
