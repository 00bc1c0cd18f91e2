package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/cloudplay/internal/config"
)

// burstMultiplier sizes the token bucket relative to the per-second rate.
const burstMultiplier = 2

// bandwidthLimiter caps the aggregate rate of every stream response. The
// limit can be changed while streams are running.
type bandwidthLimiter struct {
	limiter *rate.Limiter
	logger  *slog.Logger
}

// newBandwidthLimiter creates a limiter from a bandwidth_limit string such
// as "2MB/s". "0" means unlimited.
func newBandwidthLimiter(limit string, logger *slog.Logger) (*bandwidthLimiter, error) {
	bl := &bandwidthLimiter{limiter: rate.NewLimiter(rate.Inf, 0), logger: logger}
	if err := bl.SetLimit(limit); err != nil {
		return nil, err
	}

	return bl, nil
}

// SetLimit changes the rate. Waiting writers pick it up on their next write.
func (bl *bandwidthLimiter) SetLimit(limit string) error {
	bytesPerSec, err := config.ParseSize(limit)
	if err != nil {
		return fmt.Errorf("bandwidth: parse limit %q: %w", limit, err)
	}

	if bytesPerSec == 0 {
		bl.limiter.SetLimit(rate.Inf)
		bl.limiter.SetBurst(0)
		bl.logger.Debug("bandwidth: unlimited")

		return nil
	}

	burst := int(bytesPerSec) * burstMultiplier
	bl.limiter.SetBurst(burst)
	bl.limiter.SetLimit(rate.Limit(bytesPerSec))

	bl.logger.Info("bandwidth: limit set",
		slog.Int64("bytes_per_sec", bytesPerSec),
		slog.Int("burst", burst),
	)

	return nil
}

// WrapWriter returns w limited to the shared rate.
func (bl *bandwidthLimiter) WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	return &rateLimitedWriter{w: w, limiter: bl.limiter, ctx: ctx}
}

// rateLimitedWriter blocks after each write until the limiter allows the
// bytes written.
type rateLimitedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context //nolint:containedctx // bound to one response
}

func (w *rateLimitedWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		if waitErr := waitN(w.ctx, w.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	if f, ok := w.w.(http.Flusher); ok && err == nil {
		f.Flush()
	}

	return n, err
}

// waitN splits a large token request into burst-sized chunks, since
// rate.Limiter.WaitN rejects requests above the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()
	if limiter.Limit() == rate.Inf || burst <= 0 {
		return nil
	}

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
