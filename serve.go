package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/catalog"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/metrics"
	"github.com/tonimelisma/cloudplay/internal/session"
	"github.com/tonimelisma/cloudplay/internal/stream"
)

const (
	// streamContentType is sent for every stream; players sniff the container.
	streamContentType = "application/octet-stream"
	readHeaderTimeout = 10 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve songs over HTTP with range support",
		Long: `Run an HTTP server for media players:

  GET  /stream/{file-id}   progressive stream of a remote file (Range supported)
  GET  /songs              catalog songs as JSON
  GET  /albums, /artists   catalog aggregates as JSON
  POST /sync               rebuild the catalog from the library channel
  GET  /healthz            session phase
  GET  /metrics            Prometheus metrics

SIGHUP reloads the config file and applies a changed bandwidth_limit.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell a running server to reload its config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pid, err := signalServer(config.PIDFilePath(cc.Cfg.DataDir), syscall.SIGHUP)
			if err != nil {
				return err
			}

			cc.Statusf("Asked server (PID %d) to reload.\n", pid)

			return nil
		},
	}
}

// fileSizer reports a remote file's total size, 0 when not yet known.
type fileSizer func(ctx context.Context, fileID int32) (int64, error)

// streamServer serves the HTTP endpoints. Every collaborator is injected so
// tests can run it without a gateway.
type streamServer struct {
	newSource func() stream.Source
	size      fileSizer
	store     *catalog.Store
	sync      func(ctx context.Context) (catalog.SyncResult, error)
	phase     func() session.Phase
	limiter   *bandwidthLimiter
	gatherer  prometheus.Gatherer
	logger    *slog.Logger

	syncMu sync.Mutex
}

func (s *streamServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stream/{id}", s.handleStream)
	mux.HandleFunc("GET /songs", s.handleSongs)
	mux.HandleFunc("GET /albums", s.handleAlbums)
	mux.HandleFunc("GET /artists", s.handleArtists)
	mux.HandleFunc("POST /sync", s.handleSync)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

func (s *streamServer) handleStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseFileID(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	size, err := s.size(r.Context(), id)
	if err != nil {
		s.logger.Warn("file status failed", slog.Int("file_id", int(id)), slog.String("error", err.Error()))
		http.Error(w, "file status unavailable", http.StatusBadGateway)

		return
	}

	spec := stream.DataSpec{URI: stream.RemoteFileURI(id), Position: 0, Length: stream.LengthUnset}
	status := http.StatusOK

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Accept-Ranges", "bytes")

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" && size > 0 {
		start, end, err := parseByteRange(rangeHeader, size)

		switch {
		case errors.Is(err, errRangeNotSatisfiable):
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

			return
		case err != nil:
			http.Error(w, "invalid range", http.StatusBadRequest)
			return
		}

		spec.Position = start
		spec.Length = end - start + 1
		status = http.StatusPartialContent

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(spec.Length, 10))
	} else if size > 0 {
		spec.Length = size
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}

	src := s.newSource()
	defer src.Close()

	// A reader parked on an unfinished download only wakes when its source closes.
	stop := context.AfterFunc(r.Context(), func() { src.Close() })
	defer stop()

	if _, err := src.Open(r.Context(), spec); err != nil {
		s.writeOpenError(w, id, err)
		return
	}

	w.WriteHeader(status)

	n, err := io.Copy(s.limiter.WrapWriter(r.Context(), w), src)
	if err != nil {
		s.logger.Debug("stream copy interrupted",
			slog.Int("file_id", int(id)),
			slog.Int64("bytes", n),
			slog.String("error", err.Error()),
		)
	}
}

func (s *streamServer) writeOpenError(w http.ResponseWriter, id int32, err error) {
	s.logger.Warn("stream open failed", slog.Int("file_id", int(id)), slog.String("error", err.Error()))

	w.Header().Del("Content-Length")
	w.Header().Del("Content-Range")

	switch {
	case errors.Is(err, stream.ErrInvalidRequestIdentifier):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, stream.ErrFileNotLocated):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled):
		// Client went away.
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *streamServer) handleSongs(w http.ResponseWriter, r *http.Request) {
	songs, err := s.store.Songs(r.Context())
	s.writeJSON(w, songs, err)
}

func (s *streamServer) handleAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := s.store.Albums(r.Context())
	s.writeJSON(w, albums, err)
}

func (s *streamServer) handleArtists(w http.ResponseWriter, r *http.Request) {
	artists, err := s.store.Artists(r.Context())
	s.writeJSON(w, artists, err)
}

func (s *streamServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if !s.syncMu.TryLock() {
		http.Error(w, "sync already running", http.StatusConflict)
		return
	}
	defer s.syncMu.Unlock()

	res, err := s.sync(r.Context())
	if err == nil {
		s.logger.Info("catalog synced",
			slog.Int64("chat_id", res.ChatID),
			slog.Int("messages", res.Messages),
			slog.Int("songs", res.Songs),
			slog.Bool("replaced", res.Replaced),
		)
	}

	s.writeJSON(w, res, err)
}

type healthOutput struct {
	Session string `json:"session"`
}

func (s *streamServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	p := s.phase()
	if p != session.Ready {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = printJSON(w, healthOutput{Session: p.String()})

		return
	}

	s.writeJSON(w, healthOutput{Session: p.String()}, nil)
}

func (s *streamServer) writeJSON(w http.ResponseWriter, v any, err error) {
	if err != nil {
		s.logger.Warn("request failed", slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err := printJSON(w, v); err != nil {
		s.logger.Debug("writing response failed", slog.String("error", err.Error()))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)
	cfg := cc.Cfg

	release, err := acquirePIDFile(config.PIDFilePath(cfg.DataDir))
	if err != nil {
		return err
	}
	defer release()

	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return err
	}
	defer gs.Close()

	if err := gs.RequireReady(ctx, cfg.Backend.ConnectTimeout); err != nil {
		return err
	}

	store, err := openCatalog(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	limiter, err := newBandwidthLimiter(cfg.Serve.BandwidthLimit, cc.Logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	factory := gs.StreamFactory(&cfg.Stream)
	syncer := gs.Syncer(store, &cfg.Catalog)

	srv := &streamServer{
		newSource: func() stream.Source { return factory.New() },
		size:      remoteFileSize(gs),
		store:     store,
		sync:      func(ctx context.Context) (catalog.SyncResult, error) { return syncer.Sync(ctx) },
		phase:     gs.Tracker.Phase,
		limiter:   limiter,
		gatherer:  reg,
		logger:    cc.Logger,
	}

	holder := config.NewHolder(cfg.Config, cfg.Path)
	go reloadOnSIGHUP(ctx, holder, limiter, cc.Logger)

	return listenAndServe(ctx, cfg.Serve.Listen, srv.routes(), config.Duration(cfg.Serve.ShutdownTimeout), cc)
}

// remoteFileSize reports the final size when the backend knows it, else the
// expected size, else 0.
func remoteFileSize(gs *gatewaySession) fileSizer {
	return func(ctx context.Context, fileID int32) (int64, error) {
		f, err := gs.Orch.Status(ctx, fileID)
		if err != nil {
			return 0, err
		}

		if f.Size > 0 {
			return f.Size, nil
		}

		return f.ExpectedSize, nil
	}
}

func listenAndServe(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration, cc *CLIContext) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	server := &http.Server{Handler: h, ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	cc.Logger.Info("serving", slog.String("addr", ln.Addr().String()))
	cc.Statusf("Serving on http://%s\n", ln.Addr())

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		cc.Logger.Warn("forcing server close", slog.String("error", err.Error()))
		return server.Close()
	}

	return nil
}

// reloadOnSIGHUP re-reads the config file on SIGHUP and applies the settings
// that can change at runtime. An invalid file is logged and ignored.
func reloadOnSIGHUP(ctx context.Context, holder *config.Holder, limiter *bandwidthLimiter, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if err := reloadConfig(holder, limiter, logger); err != nil {
				logger.Warn("config reload failed", slog.String("error", err.Error()))
			}
		}
	}
}

func reloadConfig(holder *config.Holder, limiter *bandwidthLimiter, logger *slog.Logger) error {
	prev, next, err := holder.Reload(logger)
	if err != nil {
		return err
	}

	if next.Serve.BandwidthLimit != prev.Serve.BandwidthLimit {
		if err := limiter.SetLimit(next.Serve.BandwidthLimit); err != nil {
			return err
		}
	}

	logger.Info("config reloaded", slog.String("path", holder.Path()))

	return nil
}
