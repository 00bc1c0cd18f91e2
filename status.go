package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/catalog"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/tokenfile"
)

// Token source constants for status reporting.
const (
	tokenSourceEnv  = "environment"
	tokenSourceFile = "token file"
	tokenSourceNone = "none"
)

// Session state shown when the gateway cannot be reached.
const sessionUnreachable = "unreachable"

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway, login and catalog status",
		Long: `Connect to the gateway and report the session's login phase, where the
gateway token comes from, and how many songs the local catalog holds.`,
		RunE: runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	ConfigPath      string `json:"config_path"`
	GatewayURL      string `json:"gateway_url"`
	TokenSource     string `json:"token_source"`
	Phone           string `json:"phone,omitempty"`
	Session         string `json:"session"`
	SessionError    string `json:"session_error,omitempty"`
	CatalogPath     string `json:"catalog_path"`
	Songs           int    `json:"songs"`
	PendingMetadata int    `json:"pending_metadata"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	out := collectStatus(ctx, cc)

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	printStatusText(os.Stdout, &out)

	return nil
}

// collectStatus gathers everything status reports. Failures are recorded in
// the output instead of aborting, so one broken part does not hide the rest.
func collectStatus(ctx context.Context, cc *CLIContext) statusOutput {
	cfg := cc.Cfg
	tokenPath := config.TokenFilePath(cfg.DataDir)

	out := statusOutput{
		ConfigPath:  cfg.Path,
		GatewayURL:  cfg.Backend.GatewayURL,
		TokenSource: tokenSource(cfg.GatewayToken, tokenPath, cc.Logger),
		CatalogPath: cfg.Catalog.Database,
	}

	if meta, err := tokenfile.ReadMeta(tokenPath); err == nil {
		out.Phone = meta[tokenfile.MetaPhone]
	}

	out.Session, out.SessionError = sessionState(ctx, cc)
	out.Songs, out.PendingMetadata = catalogCounts(ctx, cfg.Catalog.Database, cc.Logger)

	return out
}

func tokenSource(envToken, tokenPath string, logger *slog.Logger) string {
	if envToken != "" {
		return tokenSourceEnv
	}

	tok, _, err := tokenfile.Load(tokenPath)
	if err != nil {
		logger.Warn("unreadable gateway token file", slog.String("error", err.Error()))
		return tokenSourceNone
	}

	if tok == nil {
		return tokenSourceNone
	}

	return tokenSourceFile
}

func sessionState(ctx context.Context, cc *CLIContext) (string, string) {
	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return sessionUnreachable, err.Error()
	}
	defer gs.Close()

	phase, err := gs.WaitSettled(ctx, cc.Cfg.Backend.ConnectTimeout)
	if err != nil {
		return phase.String(), err.Error()
	}

	return phase.String(), ""
}

// catalogCounts reports zeros when there is no catalog yet. Opening the
// store would create it, so a missing file is checked first.
func catalogCounts(ctx context.Context, dbPath string, logger *slog.Logger) (int, int) {
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return 0, 0
	}

	store, err := catalog.Open(ctx, dbPath, logger)
	if err != nil {
		logger.Warn("cannot open catalog", slog.String("error", err.Error()))
		return 0, 0
	}
	defer store.Close()

	songs, err := store.Songs(ctx)
	if err != nil {
		logger.Warn("cannot read catalog", slog.String("error", err.Error()))
	}

	pending, err := store.PendingMetadataCount(ctx)
	if err != nil {
		logger.Warn("cannot count pending metadata", slog.String("error", err.Error()))
	}

	return len(songs), pending
}

func printStatusText(w io.Writer, s *statusOutput) {
	fmt.Fprintf(w, "Config:   %s\n", s.ConfigPath)
	fmt.Fprintf(w, "Gateway:  %s\n", s.GatewayURL)
	fmt.Fprintf(w, "Token:    %s\n", s.TokenSource)

	if s.Phone != "" {
		fmt.Fprintf(w, "Account:  %s\n", s.Phone)
	}

	if s.SessionError != "" {
		fmt.Fprintf(w, "Session:  %s (%s)\n", s.Session, s.SessionError)
	} else {
		fmt.Fprintf(w, "Session:  %s\n", s.Session)
	}

	fmt.Fprintf(w, "Catalog:  %s\n", s.CatalogPath)
	fmt.Fprintf(w, "  Songs:            %d\n", s.Songs)
	fmt.Fprintf(w, "  Pending metadata: %d\n", s.PendingMetadata)
}
