package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that must run without a resolved
// config, e.g. because they create the config file.
const skipConfigAnnotation = "skipConfig"

// httpClientTimeout bounds plain HTTP requests made by the generic source.
// Streaming responses are read through the Dispatcher, so the timeout is
// applied per request header exchange via the transport, not the client.
const httpClientTimeout = 30 * time.Second

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	Gateway    string
	GatewaySet bool
	JSON       bool
	Verbose    bool
	Debug      bool
	Quiet      bool
}

// CLIContext is built once per invocation by the root pre-run and carried on
// the command's context.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	Cfg    *config.Resolved // nil for commands annotated with skipConfigAnnotation

	logCloser io.Closer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. It
// panics if called from a command that bypassed the root command.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("cloudplay: command context has no CLIContext")
	}

	return cc
}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// newRootCmd builds the root command with every subcommand registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:           "cloudplay",
		Short:         "Stream music stored in a chat cloud",
		Long:          "Browse and stream audio files kept in a chat channel, reading them while they download.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			flags.GatewaySet = cmd.Flags().Changed("gateway")

			cc, err := newCLIContext(cmd, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cc, ok := cmd.Context().Value(cliContextKey{}).(*CLIContext); ok && cc.logCloser != nil {
				cc.logCloser.Close()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.Gateway, "gateway", "", "gateway websocket URL (overrides config)")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "show informational logs")
	pf.BoolVar(&flags.Debug, "debug", false, "show debug logs")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "only show errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newPlayCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSongsCmd())
	cmd.AddCommand(newAlbumsCmd())
	cmd.AddCommand(newArtistsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// newCLIContext resolves config (unless the command opts out) and builds the
// logger from it.
func newCLIContext(cmd *cobra.Command, flags CLIFlags) (*CLIContext, error) {
	cc := &CLIContext{Flags: flags}

	if cmd.Annotations[skipConfigAnnotation] == "true" {
		cc.Logger, _, _ = buildLogger(nil, flags, os.Stderr)
		return cc, nil
	}

	resolved, err := loadConfig(flags, bootstrapLogger(flags))
	if err != nil {
		return nil, err
	}

	logger, closer, err := buildLogger(&resolved.Logging, flags, os.Stderr)
	if err != nil {
		return nil, err
	}

	cc.Cfg = resolved
	cc.Logger = logger
	cc.logCloser = closer

	return cc, nil
}

// loadConfig resolves the effective configuration through the override
// chain: defaults, config file, environment, flags.
func loadConfig(flags CLIFlags, logger *slog.Logger) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}
	if flags.GatewaySet {
		gw := flags.Gateway
		cli.GatewayURL = &gw
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli, logger)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// bootstrapLogger is used before config is loaded. Default level is Warn.
func bootstrapLogger(flags CLIFlags) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: flagLevel(flags, slog.LevelWarn)}))
}

func flagLevel(flags CLIFlags, base slog.Level) slog.Level {
	switch {
	case flags.Debug:
		return slog.LevelDebug
	case flags.Verbose:
		return slog.LevelInfo
	case flags.Quiet:
		return slog.LevelError
	default:
		return base
	}
}

// buildLogger creates the logger for a command. The config level is the
// baseline and the verbosity flags override it. With a log_file, records go
// to the file instead of stderr and the returned closer must be closed.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level := slog.LevelWarn
	format := "auto"

	var (
		out    = stderr
		closer io.Closer
	)

	if cfg != nil {
		level = parseLogLevel(cfg.LogLevel)
		format = cfg.LogFormat

		if cfg.LogFile != "" {
			f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return nil, nil, fmt.Errorf("opening log file: %w", err)
			}

			out, closer = f, f
		}
	}

	opts := &slog.HandlerOptions{Level: flagLevel(flags, level)}

	// "auto" keeps stderr human-readable and makes log files machine-readable.
	useJSON := format == "json" || (format == "auto" && closer != nil)
	if useJSON {
		return slog.New(slog.NewJSONHandler(out, opts)), closer, nil
	}

	return slog.New(slog.NewTextHandler(out, opts)), closer, nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// defaultHTTPClient is used by the generic stream source. The transport
// bounds header waits; bodies may stream for as long as playback lasts.
func defaultHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = httpClientTimeout

	return &http.Client{Transport: transport}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	os.Exit(1)
}
