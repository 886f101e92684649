package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/graph-mailer/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// CLIFlags is a snapshot of the persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is what PersistentPreRunE hands to every subcommand through the
// command context.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Env     config.EnvOverrides
	Logger  *slog.Logger
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by PersistentPreRunE.
func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc, ok && cc != nil
}

// mustCLIContext is cliContextFrom for commands that always run after the
// root pre-run phase.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := cliContextFrom(ctx)
	if !ok {
		panic("BUG: CLIContext not initialized")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph-mailer",
		Short: "Send a welcome mail through Microsoft Graph",
		Long: "graph-mailer signs a user in with the Microsoft identity platform, uploads their\n" +
			"profile photo to OneDrive, and sends a mail with the photo and a sharing link.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show informational logs")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "show debug logs")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only show errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSendCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig loads .env, resolves the four-layer configuration, builds the
// logger, and stores the result in the command context.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(config.DefaultDotEnvPath); err != nil {
		return err
	}

	env, err := config.ReadEnvOverrides()
	if err != nil {
		return err
	}

	flags := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Debug:      flagDebug,
		Quiet:      flagQuiet,
	}

	cli := config.CLIOverrides{
		ConfigPath: flags.ConfigPath,
		LogLevel:   flagLogLevel(flags),
	}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		addr := f.Value.String()
		cli.ListenAddr = &addr
	}

	cfg, cfgPath, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(os.Stderr, cfg.Logging)
	slog.SetDefault(logger)

	logger.Debug("configuration resolved", slog.String("path", cfgPath))

	cc := &CLIContext{
		Flags:   flags,
		Cfg:     cfg,
		CfgPath: cfgPath,
		Env:     env,
		Logger:  logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// flagLogLevel maps the verbosity flags to a log level override. nil means
// no flag was given and the configured level stands.
func flagLogLevel(f CLIFlags) *string {
	var level string

	switch {
	case f.Debug:
		level = "debug"
	case f.Verbose:
		level = "info"
	case f.Quiet:
		level = "error"
	default:
		return nil
	}

	return &level
}

// buildLogger creates the process logger. "auto" picks text for an
// interactive terminal and JSON otherwise.
func buildLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(lc.LogLevel)}

	format := lc.LogFormat
	if format == "auto" || format == "" {
		format = "json"
		if isTerminal(w) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns the shared client for Graph and the token endpoint.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: config.Duration(cfg.Network.Timeout, defaultHTTPTimeout)}
}

// defaultHTTPTimeout applies only if the configured timeout cannot be parsed,
// which Validate already rules out.
const defaultHTTPTimeout = 30 * time.Second

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	if errors.Is(err, config.ErrMissingCredentials) {
		fmt.Fprintf(os.Stderr, "Set %s and %s, or fill in [oauth] in the config file.\n",
			config.EnvClientID, config.EnvClientSecret)
	}

	os.Exit(1)
}
