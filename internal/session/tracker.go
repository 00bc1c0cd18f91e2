package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/metrics"
)

// Tracker holds the current authorization phase. It has a single writer
// (Run, or Apply for callers that feed states themselves) and any number of
// readers. A new phase is published only when it differs from the current
// one.
type Tracker struct {
	mu       sync.Mutex
	phase    Phase
	watchers map[chan Phase]struct{}
	logger   *slog.Logger
}

// NewTracker returns a tracker in the Unauthenticated phase.
func NewTracker(logger *slog.Logger) *Tracker {
	return &Tracker{
		phase:    Unauthenticated,
		watchers: make(map[chan Phase]struct{}),
		logger:   logger,
	}
}

// Phase returns the current phase.
func (t *Tracker) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.phase
}

// Run consumes authorization updates from events until the stream closes
// (returns nil) or ctx ends (returns ctx.Err()). Other objects are ignored.
func (t *Tracker) Run(ctx context.Context, events <-chan backend.Object) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case obj, ok := <-events:
			if !ok {
				return nil
			}

			if obj.Type != backend.TypeUpdateAuthorizationState {
				continue
			}

			u, err := backend.DecodeAs[backend.UpdateAuthorizationState](obj)
			if err != nil {
				t.logger.Warn("ignoring undecodable authorization update", slog.String("error", err.Error()))
				continue
			}

			t.Apply(u.AuthorizationState.Type)
		}
	}
}

// Apply maps a backend state tag to a phase and publishes it if it changed.
// Reports whether the phase changed.
func (t *Tracker) Apply(state string) bool {
	next := PhaseFromState(state)

	t.mu.Lock()
	defer t.mu.Unlock()

	if next == t.phase {
		return false
	}

	t.logger.Info("authorization phase changed",
		slog.String("from", t.phase.String()),
		slog.String("to", next.String()),
		slog.String("state", state),
	)

	t.phase = next
	metrics.SessionPhaseChanges.WithLabelValues(next.String()).Inc()

	for w := range t.watchers {
		offerLatest(w, next)
	}

	return true
}

// Watch returns a channel that holds the latest phase. The current phase is
// available immediately; a watcher that falls behind sees only the newest
// value, never a history. The channel is closed when ctx ends.
func (t *Tracker) Watch(ctx context.Context) <-chan Phase {
	w := make(chan Phase, 1)

	t.mu.Lock()
	w <- t.phase
	t.watchers[w] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()

		t.mu.Lock()
		delete(t.watchers, w)
		close(w)
		t.mu.Unlock()
	}()

	return w
}

// WaitFor blocks until the phase satisfies pred and returns it. If ctx ends
// first, the current phase and ctx.Err() are returned.
func (t *Tracker) WaitFor(ctx context.Context, pred func(Phase) bool) (Phase, error) {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for p := range t.Watch(wctx) {
		if pred(p) {
			return p, nil
		}
	}

	return t.Phase(), ctx.Err()
}

// offerLatest replaces any unread value in w with p. Callers hold t.mu, so
// only one sender touches w at a time.
func offerLatest(w chan Phase, p Phase) {
	select {
	case w <- p:
		return
	default:
	}

	select {
	case <-w:
	default:
	}

	select {
	case w <- p:
	default:
	}
}
