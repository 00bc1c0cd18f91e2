package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/bridge"
	"github.com/tonimelisma/cloudplay/internal/catalog"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/download"
	"github.com/tonimelisma/cloudplay/internal/session"
	"github.com/tonimelisma/cloudplay/internal/stream"
	"github.com/tonimelisma/cloudplay/internal/tokenfile"
)

// errNotLoggedIn is returned when a command needs a ready session.
var errNotLoggedIn = errors.New("not logged in: run 'cloudplay login' first")

// gatewaySession is one connected backend session with every component that
// hangs off it.
type gatewaySession struct {
	Bridge  *bridge.Bridge
	Tracker *session.Tracker
	Auth    *session.Authenticator
	Orch    *download.Orchestrator

	logger      *slog.Logger
	sub         *bridge.Subscription
	cancel      context.CancelFunc
	trackerDone chan struct{}
}

// gatewayToken returns the bearer token for the gateway: the environment
// wins over the saved token file. A nil token means connect anonymously.
func gatewayToken(r *config.Resolved) (*oauth2.Token, error) {
	if r.GatewayToken != "" {
		return tokenfile.Bearer(r.GatewayToken), nil
	}

	tok, _, err := tokenfile.Load(config.TokenFilePath(r.DataDir))
	if err != nil {
		return nil, err
	}

	return tok, nil
}

// gatewayHTTPClient returns the client used for the websocket handshake,
// authenticating it when a token is available.
func gatewayHTTPClient(ctx context.Context, tok *oauth2.Token) *http.Client {
	if tok == nil {
		return http.DefaultClient
	}

	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
}

func tdlibParameters(b *config.BackendConfig) backend.SetTdlibParameters {
	return backend.SetTdlibParameters{
		UseTestDC:           b.UseTestDC,
		DatabaseDirectory:   b.DatabaseDir,
		FilesDirectory:      b.FilesDir,
		UseFileDatabase:     true,
		UseChatInfoDatabase: true,
		UseMessageDatabase:  true,
		APIID:               int32(b.APIID), //nolint:gosec // validated non-negative, ids fit in int32
		APIHash:             b.APIHash,
		SystemLanguageCode:  b.SystemLanguage,
		DeviceModel:         b.DeviceModel,
		ApplicationVersion:  version,
	}
}

// connectGateway dials the gateway and starts the bridge, the phase tracker
// and the download orchestrator. The caller must Close the session.
func connectGateway(ctx context.Context, cc *CLIContext) (*gatewaySession, error) {
	cfg := cc.Cfg
	logger := cc.Logger

	tok, err := gatewayToken(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading gateway token: %w", err)
	}

	dialCtx, cancelDial := context.WithTimeout(ctx, config.Duration(cfg.Backend.ConnectTimeout))
	defer cancelDial()

	ch, err := backend.Dial(dialCtx, cfg.Backend.GatewayURL, backend.DialOptions{
		HTTPClient: gatewayHTTPClient(ctx, tok),
	}, logger)
	if err != nil {
		return nil, err
	}

	b := bridge.New(ch, tdlibParameters(&cfg.Backend), bridge.Options{
		EventBuffer:       cfg.Backend.EventBuffer,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		CallTimeout:       config.Duration(cfg.Backend.CallTimeout),
	}, logger)

	return startSession(ctx, b, cfg, logger), nil
}

// startSession wires the components onto an unstarted bridge. The tracker
// subscribes before the bridge starts so the first authorization update is
// never missed.
func startSession(ctx context.Context, b *bridge.Bridge, cfg *config.Resolved, logger *slog.Logger) *gatewaySession {
	runCtx, cancel := context.WithCancel(ctx)

	gs := &gatewaySession{
		Bridge:      b,
		Tracker:     session.NewTracker(logger),
		logger:      logger,
		sub:         b.Subscribe(),
		cancel:      cancel,
		trackerDone: make(chan struct{}),
	}

	gs.Auth = session.NewAuthenticator(b, gs.Tracker, logger)
	gs.Orch = download.New(b, download.Options{
		Priority:     int32(cfg.Download.Priority), //nolint:gosec // validated 1..32
		Synchronous:  cfg.Download.Synchronous,
		PollInterval: config.Duration(cfg.Download.PollInterval),
		PollAttempts: cfg.Download.PollAttempts,
	}, logger)

	go func() {
		defer close(gs.trackerDone)

		if err := gs.Tracker.Run(runCtx, gs.sub.Events()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("phase tracker stopped", slog.String("error", err.Error()))
		}
	}()

	b.Start(runCtx)

	return gs
}

// WaitSettled blocks until the backend reports a phase the client acts on:
// Ready or one of the login prompts.
func (gs *gatewaySession) WaitSettled(ctx context.Context, timeoutStr string) (session.Phase, error) {
	wctx, cancel := context.WithTimeout(ctx, config.Duration(timeoutStr))
	defer cancel()

	p, err := gs.Tracker.WaitFor(wctx, func(p session.Phase) bool {
		return p != session.Unauthenticated && p != session.Other
	})
	if err != nil {
		return p, fmt.Errorf("waiting for gateway session (phase %s): %w", p, err)
	}

	return p, nil
}

// RequireReady waits for the session to settle and fails unless it is Ready.
func (gs *gatewaySession) RequireReady(ctx context.Context, timeoutStr string) error {
	p, err := gs.WaitSettled(ctx, timeoutStr)
	if err != nil {
		return err
	}

	if p != session.Ready {
		return fmt.Errorf("%w (session is %s)", errNotLoggedIn, p)
	}

	return nil
}

// StreamFactory builds Dispatchers that resolve files through this session.
func (gs *gatewaySession) StreamFactory(cfg *config.StreamConfig) stream.Factory {
	return stream.Factory{
		Resolver: gs.Orch,
		Options: stream.ReaderOptions{
			StallRetries:     stallRetries(cfg.StallRetries),
			StallInterval:    config.Duration(cfg.StallInterval),
			FileWaitAttempts: cfg.FileWaitAttempts,
			FileWaitInterval: config.Duration(cfg.FileWaitInterval),
			WatchFiles:       cfg.WatchFiles,
			Probe:            gs.Orch,
		},
		HTTPClient: defaultHTTPClient(),
		Logger:     gs.logger,
		Listeners:  []stream.TransferListener{stream.MetricsListener{}},
	}
}

// stallRetries maps the config value, where 0 disables retries, onto
// ReaderOptions, where 0 selects the default.
func stallRetries(n int) int {
	if n == 0 {
		return -1
	}

	return n
}

// Syncer returns a catalog syncer over this session.
func (gs *gatewaySession) Syncer(store *catalog.Store, cfg *config.CatalogConfig) *catalog.Syncer {
	return catalog.NewSyncer(gs.Bridge, store, catalog.SyncerOptions{
		ChatTitle:       cfg.ChatTitle,
		HistoryPageSize: int32(cfg.HistoryPageSize), //nolint:gosec // validated 1..100
		ChatScanLimit:   int32(cfg.ChatScanLimit),   //nolint:gosec // validated 1..1000
		LookupWorkers:   cfg.LookupWorkers,
	}, gs.logger)
}

// Close stops the bridge and waits for the tracker to drain.
func (gs *gatewaySession) Close() error {
	gs.cancel()
	err := gs.Bridge.Close()
	gs.sub.Close()
	<-gs.trackerDone

	return err
}
