// Package download makes remote files locally readable. It asks the backend
// to fetch a file and then polls the file's status until the backend reports
// a local path. A returned path is a hint that bytes are arriving, not a
// promise that the file is complete.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/bridge"
	"github.com/tonimelisma/cloudplay/internal/metrics"
	"github.com/tonimelisma/cloudplay/internal/retry"
)

// ErrFileNotLocated is returned when no local path appeared within the poll
// budget.
var ErrFileNotLocated = errors.New("download: file not located")

// Defaults for Options fields left at zero.
const (
	DefaultPriority     = 32
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollAttempts = 20

	backgroundTriggerTimeout = time.Minute
)

// Wait outcome labels.
const (
	outcomeLocated    = "located"
	outcomeImmediate  = "immediate"
	outcomeNotLocated = "not_located"
	outcomeCancelled  = "cancelled"
)

// Caller executes remote calls. Satisfied by *bridge.Bridge.
type Caller interface {
	Call(ctx context.Context, fn backend.Function) (backend.Object, error)
}

// Options tunes an Orchestrator.
type Options struct {
	Priority     int32 // 1..32, higher is sooner
	Synchronous  bool  // ask the backend to answer the trigger only once the download ends
	PollInterval time.Duration
	PollAttempts int
}

// Orchestrator resolves file ids to local paths.
type Orchestrator struct {
	caller Caller
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator. Zero option fields take the package defaults.
func New(caller Caller, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Priority <= 0 {
		opts.Priority = DefaultPriority
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.PollAttempts <= 0 {
		opts.PollAttempts = DefaultPollAttempts
	}

	return &Orchestrator{caller: caller, opts: opts, logger: logger}
}

// WaitForPath starts the download, waits for the trigger's answer, then polls
// the file status until a local path is known. A failed trigger or status
// query is logged and polling continues; after the configured number of polls
// without a path ErrFileNotLocated is returned.
func (o *Orchestrator) WaitForPath(ctx context.Context, fileID int32) (string, error) {
	o.trigger(ctx, fileID)

	var path string

	attempts, err := retry.Poll(ctx, retry.Policy{Interval: o.opts.PollInterval, MaxAttempts: o.opts.PollAttempts}, nil,
		func(attempt int) (bool, error) {
			metrics.DownloadPollsTotal.Inc()

			f, err := o.Status(ctx, fileID)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return false, ctxErr
				}

				o.logger.Debug("file status query failed",
					slog.Int("file_id", int(fileID)),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)

				return false, nil
			}

			if f.Local.Path == "" {
				return false, nil
			}

			path = f.Local.Path

			return true, nil
		})

	switch {
	case err == nil:
		metrics.DownloadWaitsTotal.WithLabelValues(outcomeLocated).Inc()
		o.logger.Debug("local path located",
			slog.Int("file_id", int(fileID)),
			slog.String("path", path),
			slog.Int("attempts", attempts),
		)

		return path, nil
	case errors.Is(err, retry.ErrExhausted):
		metrics.DownloadWaitsTotal.WithLabelValues(outcomeNotLocated).Inc()
		o.logger.Warn("no local path after polling",
			slog.Int("file_id", int(fileID)),
			slog.Int("attempts", attempts),
		)

		return "", fmt.Errorf("%w: file %d after %d status queries", ErrFileNotLocated, fileID, attempts)
	default:
		metrics.DownloadWaitsTotal.WithLabelValues(outcomeCancelled).Inc()

		return "", err
	}
}

// ImmediatePath returns an already known local path at once and starts the
// download in the background. With no known path it behaves like
// WaitForPath.
func (o *Orchestrator) ImmediatePath(ctx context.Context, fileID int32) (string, error) {
	f, err := o.Status(ctx, fileID)
	if err == nil && f.Local.Path != "" {
		metrics.DownloadWaitsTotal.WithLabelValues(outcomeImmediate).Inc()

		go func() {
			bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTriggerTimeout)
			defer cancel()

			o.trigger(bg, fileID)
		}()

		return f.Local.Path, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	if err != nil {
		o.logger.Debug("initial status query failed, waiting for download",
			slog.Int("file_id", int(fileID)),
			slog.String("error", err.Error()),
		)
	}

	return o.WaitForPath(ctx, fileID)
}

// PathByRemoteID resolves a durable remote id to a session file and waits
// for its local path.
func (o *Orchestrator) PathByRemoteID(ctx context.Context, remoteID string) (string, error) {
	f, err := bridge.CallAs[backend.File](ctx, o.caller, backend.GetRemoteFile{
		RemoteFileID: remoteID,
		FileType:     &backend.Tagged{Type: backend.TypeFileTypeAudio},
	}, backend.TypeFile)
	if err != nil {
		return "", fmt.Errorf("download: resolving remote file %s: %w", remoteID, err)
	}

	return o.WaitForPath(ctx, f.ID)
}

// Status performs one file status query.
func (o *Orchestrator) Status(ctx context.Context, fileID int32) (backend.File, error) {
	return bridge.CallAs[backend.File](ctx, o.caller, backend.GetFile{FileID: fileID}, backend.TypeFile)
}

// Completed reports whether the backend has the whole file locally, and the
// file's size when it does.
func (o *Orchestrator) Completed(ctx context.Context, fileID int32) (bool, int64, error) {
	f, err := o.Status(ctx, fileID)
	if err != nil {
		return false, 0, err
	}

	if !f.Local.IsDownloadingCompleted {
		return false, 0, nil
	}

	size := f.Size
	if size == 0 {
		size = f.Local.DownloadedSize
	}

	return true, size, nil
}

// trigger asks the backend to download the whole file. Failures are logged
// only; the status polls decide the outcome.
func (o *Orchestrator) trigger(ctx context.Context, fileID int32) {
	_, err := o.caller.Call(ctx, backend.DownloadFile{
		FileID:      fileID,
		Priority:    o.opts.Priority,
		Offset:      0,
		Limit:       0,
		Synchronous: o.opts.Synchronous,
	})
	if err != nil {
		o.logger.Warn("download trigger failed",
			slog.Int("file_id", int(fileID)),
			slog.String("error", err.Error()),
		)

		return
	}

	o.logger.Debug("download triggered",
		slog.Int("file_id", int(fileID)),
		slog.Bool("synchronous", o.opts.Synchronous),
	)
}
