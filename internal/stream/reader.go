package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/cloudplay/internal/metrics"
	"github.com/tonimelisma/cloudplay/internal/retry"
)

// Defaults for ReaderOptions fields left at zero.
const (
	DefaultStallRetries     = 50
	DefaultStallInterval    = 100 * time.Millisecond
	DefaultFileWaitAttempts = 20
	DefaultFileWaitInterval = 100 * time.Millisecond
)

const sourceProgressive = "progressive"

// errEndOfFile stops a stall retry when the download is known complete.
var errEndOfFile = errors.New("stream: end of completed file")

// PathResolver turns a file id into a local path, waiting for the download
// to produce one. Satisfied by *download.Orchestrator.
type PathResolver interface {
	WaitForPath(ctx context.Context, fileID int32) (string, error)
}

// CompletionProbe reports whether a file's download has finished and its
// final size. Satisfied by *download.Orchestrator.
type CompletionProbe interface {
	Completed(ctx context.Context, fileID int32) (bool, int64, error)
}

// ReaderOptions tunes a Reader.
type ReaderOptions struct {
	StallRetries     int           // extra read attempts at end-of-file; 0 uses the default, negative disables
	StallInterval    time.Duration // wait between stall retries
	FileWaitAttempts int           // checks for the local file to exist after a path is known
	FileWaitInterval time.Duration
	WatchFiles       bool            // wake stalled reads on file writes
	Probe            CompletionProbe // optional; lets a finished download end a read at once
}

type readerState int

const (
	stateClosed readerState = iota
	stateOpening
	stateOpen
)

// Reader is the progressive source for remote-file URIs. It resolves the
// file id to a local path, then serves bytes from the growing file at the
// requested offset. Reaching the current end of the file is not treated as
// the end of the stream: the read is retried for a bounded time while the
// download catches up. A read that gives up reports io.EOF and Stalled
// returns true.
type Reader struct {
	resolver  PathResolver
	opts      ReaderOptions
	logger    *slog.Logger
	listeners listenerSet

	mu         sync.Mutex // guards everything below except the read cursor
	state      readerState
	spec       DataSpec
	fileID     int32
	path       string
	file       *os.File
	watcher    *fsnotify.Watcher
	wake       chan struct{}
	sessCtx    context.Context //nolint:containedctx // cancelled by Close to interrupt a blocked Read
	cancel     context.CancelFunc
	openCancel context.CancelFunc
	stalled    bool

	readMu       sync.Mutex // serializes Read with Close's release of the file
	offset       int64
	remaining    int64
	completeSize int64 // final size once the probe reports completion, else LengthUnset
}

// NewReader creates a closed Reader.
func NewReader(resolver PathResolver, opts ReaderOptions, logger *slog.Logger) *Reader {
	if opts.StallRetries < 0 {
		opts.StallRetries = 0
	} else if opts.StallRetries == 0 {
		opts.StallRetries = DefaultStallRetries
	}

	if opts.StallInterval <= 0 {
		opts.StallInterval = DefaultStallInterval
	}

	if opts.FileWaitAttempts <= 0 {
		opts.FileWaitAttempts = DefaultFileWaitAttempts
	}

	if opts.FileWaitInterval <= 0 {
		opts.FileWaitInterval = DefaultFileWaitInterval
	}

	return &Reader{resolver: resolver, opts: opts, logger: logger, remaining: LengthUnset}
}

// AddTransferListener registers l for this reader's transfer events.
func (r *Reader) AddTransferListener(l TransferListener) {
	r.listeners.add(l)
}

// URI returns the URI of the open session, or nil.
func (r *Reader) URI() *url.URL {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateClosed {
		return nil
	}

	return r.spec.URI
}

// Path returns the local path of the open session, or "".
func (r *Reader) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.path
}

// Stalled reports whether the last end-of-stream was caused by the download
// not keeping up rather than by reaching the end of the file.
func (r *Reader) Stalled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stalled
}

// Open resolves spec.URI to a local file and prepares to read from
// spec.Position. It returns spec.Length, or LengthUnset when the length is
// unknown.
func (r *Reader) Open(ctx context.Context, spec DataSpec) (int64, error) {
	r.mu.Lock()
	if r.state != stateClosed {
		r.mu.Unlock()
		return 0, ErrAlreadyOpen
	}

	openCtx, openCancel := context.WithCancel(ctx)
	r.state = stateOpening
	r.spec = spec
	r.openCancel = openCancel
	r.stalled = false
	r.mu.Unlock()

	defer openCancel()

	r.listeners.initializing(r, spec)

	f, path, fileID, err := r.openFile(openCtx, spec)
	if err != nil {
		r.mu.Lock()
		r.state = stateClosed
		r.openCancel = nil
		r.mu.Unlock()

		metrics.StreamOpensTotal.WithLabelValues(sourceProgressive, "error").Inc()
		r.logger.Warn("progressive open failed",
			slog.String("uri", uriString(spec.URI)),
			slog.String("error", err.Error()),
		)

		return 0, err
	}

	length := spec.Length
	if length < 0 {
		length = LengthUnset
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	watcher, wake := r.watch(sessCtx, path)

	r.readMu.Lock()
	r.offset = spec.Position
	r.remaining = length
	r.completeSize = LengthUnset
	r.readMu.Unlock()

	r.mu.Lock()
	if ctxErr := openCtx.Err(); ctxErr != nil {
		// Close ran while the file was being opened.
		r.state = stateClosed
		r.openCancel = nil
		r.mu.Unlock()

		cancel()
		if watcher != nil {
			_ = watcher.Close() //nolint:errcheck // watch is best-effort
		}
		f.Close()

		return 0, ctxErr
	}

	r.state = stateOpen
	r.openCancel = nil
	r.fileID = fileID
	r.path = path
	r.file = f
	r.watcher = watcher
	r.wake = wake
	r.sessCtx = sessCtx
	r.cancel = cancel
	r.mu.Unlock()

	metrics.StreamOpensTotal.WithLabelValues(sourceProgressive, "ok").Inc()
	r.logger.Debug("progressive stream opened",
		slog.Int("file_id", int(fileID)),
		slog.String("path", path),
		slog.Int64("position", spec.Position),
		slog.Int64("length", length),
	)

	r.listeners.started(r, spec)

	return length, nil
}

func (r *Reader) openFile(ctx context.Context, spec DataSpec) (*os.File, string, int32, error) {
	fileID, err := ParseFileID(spec.URI)
	if err != nil {
		return nil, "", 0, err
	}

	path, err := r.resolver.WaitForPath(ctx, fileID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", 0, ctxErr
		}

		return nil, "", 0, fmt.Errorf("%w: file %d: %w", ErrFileNotLocated, fileID, err)
	}

	if path == "" {
		return nil, "", 0, fmt.Errorf("%w: file %d: empty path", ErrFileNotLocated, fileID)
	}

	// The backend may report the path before it creates the file.
	_, err = retry.Poll(ctx, retry.Policy{Interval: r.opts.FileWaitInterval, MaxAttempts: r.opts.FileWaitAttempts}, nil,
		func(int) (bool, error) {
			_, statErr := os.Stat(path)
			return statErr == nil, nil
		})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			return nil, "", 0, fmt.Errorf("%w: file %d: %s never appeared", ErrFileNotLocated, fileID, path)
		}

		return nil, "", 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, "", 0, fmt.Errorf("stream: opening %s: %w", path, err)
	}

	return f, path, fileID, nil
}

// watch starts an fsnotify watch on path whose write events wake stalled
// reads. A failed watch only costs latency, so it is logged and skipped.
func (r *Reader) watch(ctx context.Context, path string) (*fsnotify.Watcher, chan struct{}) {
	wake := make(chan struct{}, 1)

	if !r.opts.WatchFiles {
		return nil, wake
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.logger.Debug("file watch unavailable", slog.String("error", err.Error()))
		return nil, wake
	}

	if err := w.Add(path); err != nil {
		r.logger.Debug("file watch failed", slog.String("path", path), slog.String("error", err.Error()))
		w.Close()

		return nil, wake
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}

				if ev.Has(fsnotify.Write) {
					select {
					case wake <- struct{}{}:
					default:
					}
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return w, wake
}

// Read copies up to len(p) bytes from the current offset. It never reads
// past the requested length. At the current end of the file it waits for
// the download, up to the stall budget.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	if r.state != stateOpen {
		r.mu.Unlock()
		return 0, ErrSessionNotOpen
	}

	ctx, f, wake, spec, fileID := r.sessCtx, r.file, r.wake, r.spec, r.fileID
	r.mu.Unlock()

	r.readMu.Lock()
	defer r.readMu.Unlock()

	// Close may have released the file while this call waited for readMu.
	if ctx.Err() != nil {
		return 0, ErrSessionNotOpen
	}

	if len(p) == 0 {
		return 0, nil
	}

	if r.remaining == 0 {
		return 0, io.EOF
	}

	want := len(p)
	if r.remaining != LengthUnset && int64(want) > r.remaining {
		want = int(r.remaining)
	}

	var got int

	attempts, err := retry.Poll(ctx, retry.Policy{Interval: r.opts.StallInterval, MaxAttempts: r.opts.StallRetries + 1}, wake,
		func(attempt int) (bool, error) {
			n, readErr := f.ReadAt(p[:want], r.offset)
			if n > 0 {
				got = n
				return true, nil
			}

			if readErr != nil && !errors.Is(readErr, io.EOF) {
				return false, fmt.Errorf("stream: reading file %d: %w", fileID, readErr)
			}

			if r.atCompletedEnd(ctx, fileID) {
				return false, errEndOfFile
			}

			if attempt == 1 {
				r.logger.Debug("waiting for download to catch up",
					slog.Int("file_id", int(fileID)),
					slog.Int64("offset", r.offset),
				)
			}

			return false, nil
		})

	switch {
	case err == nil:
		r.offset += int64(got)
		if r.remaining != LengthUnset {
			r.remaining -= int64(got)
		}

		r.listeners.transferred(r, spec, got)

		return got, nil
	case errors.Is(err, errEndOfFile):
		return 0, io.EOF
	case errors.Is(err, retry.ErrExhausted):
		r.mu.Lock()
		r.stalled = true
		r.mu.Unlock()

		metrics.StreamStallsTotal.Inc()
		r.logger.Warn("download stalled, ending stream",
			slog.Int("file_id", int(fileID)),
			slog.Int64("offset", r.offset),
			slog.Int("attempts", attempts),
		)

		return 0, io.EOF
	case ctx.Err() != nil:
		return 0, ErrSessionNotOpen
	default:
		return 0, err
	}
}

// atCompletedEnd reports whether the offset is at or past the final size of
// a finished download. Callers hold readMu.
func (r *Reader) atCompletedEnd(ctx context.Context, fileID int32) bool {
	if r.completeSize == LengthUnset && r.opts.Probe != nil {
		done, size, err := r.opts.Probe.Completed(ctx, fileID)
		if err != nil {
			r.logger.Debug("completion probe failed",
				slog.Int("file_id", int(fileID)),
				slog.String("error", err.Error()),
			)

			return false
		}

		if done {
			r.completeSize = size
		}
	}

	return r.completeSize != LengthUnset && r.offset >= r.completeSize
}

// Close ends the session. It interrupts a blocked Read, releases the file,
// and announces the end of the transfer once per open. Closing a closed
// reader is a no-op; closing while Open is in progress aborts the open.
func (r *Reader) Close() error {
	r.mu.Lock()

	switch r.state {
	case stateClosed:
		r.mu.Unlock()
		return nil
	case stateOpening:
		if r.openCancel != nil {
			r.openCancel()
		}

		r.mu.Unlock()

		return nil
	}

	r.state = stateClosed
	spec, cancel, f, watcher := r.spec, r.cancel, r.file, r.watcher
	r.file, r.watcher, r.cancel, r.sessCtx, r.path = nil, nil, nil, nil, ""
	r.mu.Unlock()

	cancel()

	r.readMu.Lock()
	var closeErr error
	if err := f.Close(); err != nil {
		closeErr = fmt.Errorf("stream: closing file: %w", err)
	}

	if watcher != nil {
		_ = watcher.Close() //nolint:errcheck // watch is best-effort
	}

	r.remaining = LengthUnset
	r.readMu.Unlock()

	r.logger.Debug("progressive stream closed", slog.String("uri", uriString(spec.URI)))
	r.listeners.ended(r, spec)

	return closeErr
}

func uriString(u *url.URL) string {
	if u == nil {
		return ""
	}

	return u.String()
}
