// Package bridge turns the gateway's single callback-driven channel into
// per-request calls. Each Call registers a one-shot continuation keyed by a
// fresh correlation token before the request is sent, and the channel's
// receive loop resolves it when the matching response arrives. Every received
// object, responses and updates alike, also fans out to subscribers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/metrics"
)

// DefaultEventBuffer is the per-subscriber buffer when Options leaves it unset.
const DefaultEventBuffer = 100

// Outcome labels for the calls metric.
const (
	outcomeOK          = "ok"
	outcomeRemoteError = "remote_error"
	outcomeSendError   = "send_error"
	outcomeCancelled   = "cancelled"
	outcomeClosed      = "closed"
)

// Caller is anything that executes remote calls. *Bridge implements it.
type Caller interface {
	Call(ctx context.Context, fn backend.Function) (backend.Object, error)
}

// Options tunes a Bridge. The zero value is usable.
type Options struct {
	EventBuffer       int           // per-subscriber buffer; 0 uses DefaultEventBuffer
	RequestsPerSecond float64       // 0 disables call rate limiting
	CallTimeout       time.Duration // applied when the caller's ctx has no deadline; 0 disables
	TokenFunc         func() string // correlation token source; nil uses random UUIDs
}

type result struct {
	obj backend.Object
	err error
}

// Bridge correlates requests and responses over one backend.Channel.
type Bridge struct {
	ch          backend.Channel
	params      backend.SetTdlibParameters
	logger      *slog.Logger
	limiter     *rate.Limiter
	newToken    func() string
	callTimeout time.Duration
	eventBuffer int

	pending sync.Map // token -> chan result (buffered 1)

	subsMu sync.RWMutex
	subs   map[*Subscription]struct{}

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	runMu     sync.Mutex // guards cancelRun between Start and Close
	cancelRun context.CancelFunc
	runDone   chan struct{}
	runErr    error
}

// New creates a Bridge over ch. params is sent once by Start.
func New(ch backend.Channel, params backend.SetTdlibParameters, opts Options, logger *slog.Logger) *Bridge {
	b := &Bridge{
		ch:          ch,
		params:      params,
		logger:      logger,
		newToken:    opts.TokenFunc,
		callTimeout: opts.CallTimeout,
		eventBuffer: opts.EventBuffer,
		subs:        make(map[*Subscription]struct{}),
		runDone:     make(chan struct{}),
	}

	if b.newToken == nil {
		b.newToken = uuid.NewString
	}

	if b.eventBuffer <= 0 {
		b.eventBuffer = DefaultEventBuffer
	}

	if opts.RequestsPerSecond > 0 {
		burst := max(1, int(opts.RequestsPerSecond))
		b.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return b
}

// Start launches the receive loop and sends the session parameters. It
// returns immediately; the parameters' outcome is only logged. Later calls
// are no-ops.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)

		b.runMu.Lock()
		b.cancelRun = cancel
		b.runMu.Unlock()

		go b.run(runCtx)
		go b.initialize(runCtx)
	})
}

func (b *Bridge) run(ctx context.Context) {
	defer close(b.runDone)

	err := b.ch.Run(ctx, b.dispatch)
	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("gateway receive loop ended", slog.String("error", err.Error()))
	}

	b.runErr = err
	b.shutdown()
}

func (b *Bridge) initialize(ctx context.Context) {
	obj, err := b.Call(ctx, b.params)
	if err != nil {
		b.logger.Warn("session parameters rejected", slog.String("error", err.Error()))
		return
	}

	b.logger.Debug("session parameters accepted", slog.String("response", obj.Type))
}

// Done is closed once the receive loop has stopped.
func (b *Bridge) Done() <-chan struct{} {
	return b.runDone
}

// Err reports why the receive loop stopped. Valid after Done is closed.
func (b *Bridge) Err() error {
	<-b.runDone

	return b.runErr
}

// Call sends fn and waits for its response. It resolves exactly once: with
// the response object, a *RemoteError when the backend answered with an
// error, the send failure, ErrClosed, or ctx's error.
func (b *Bridge) Call(ctx context.Context, fn backend.Function) (backend.Object, error) {
	if b.closed.Load() {
		return backend.Object{}, ErrClosed
	}

	if b.callTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.callTimeout)
			defer cancel()
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return backend.Object{}, fmt.Errorf("bridge: waiting to send %s: %w", fn.Type(), err)
		}
	}

	token := b.newToken()

	frame, err := backend.Encode(token, fn)
	if err != nil {
		return backend.Object{}, err
	}

	done := make(chan result, 1)
	b.pending.Store(token, done)
	metrics.BridgePendingCalls.Inc()

	// Close may have drained the table between the check above and Store.
	if b.closed.Load() {
		b.forget(token)
		return backend.Object{}, ErrClosed
	}

	start := time.Now()

	if err := b.ch.Send(ctx, frame); err != nil {
		b.forget(token)
		b.observe(fn.Type(), outcomeSendError, start)

		return backend.Object{}, fmt.Errorf("bridge: sending %s: %w", fn.Type(), err)
	}

	select {
	case r := <-done:
		b.observe(fn.Type(), outcomeOf(r.err), start)

		if r.err != nil {
			var remote *RemoteError
			if errors.As(r.err, &remote) {
				remote.Function = fn.Type()
			}

			return backend.Object{}, r.err
		}

		return r.obj, nil
	case <-ctx.Done():
		b.forget(token)
		b.observe(fn.Type(), outcomeCancelled, start)

		return backend.Object{}, ctx.Err()
	}
}

// forget removes a pending registration. A response arriving later is
// dropped by dispatch.
func (b *Bridge) forget(token string) {
	if _, ok := b.pending.LoadAndDelete(token); ok {
		metrics.BridgePendingCalls.Dec()
	}
}

func (b *Bridge) observe(fn, outcome string, start time.Time) {
	metrics.BridgeCallsTotal.WithLabelValues(fn, outcome).Inc()
	metrics.BridgeCallDuration.WithLabelValues(fn).Observe(time.Since(start).Seconds())
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrRemoteCallFailed):
		return outcomeRemoteError
	case errors.Is(err, ErrClosed):
		return outcomeClosed
	default:
		return outcomeSendError
	}
}

// dispatch runs on the channel's receive goroutine and never blocks. A
// response first resolves its pending call; every object, including
// responses and orphans whose call already gave up, then goes to the
// subscribers.
func (b *Bridge) dispatch(obj backend.Object) {
	if obj.Extra != "" {
		b.resolve(obj)
	}

	b.publish(obj)
}

func (b *Bridge) resolve(obj backend.Object) {
	v, ok := b.pending.LoadAndDelete(obj.Extra)
	if !ok {
		b.logger.Debug("response with no pending call",
			slog.String("type", obj.Type),
			slog.String("extra", obj.Extra),
		)

		return
	}

	metrics.BridgePendingCalls.Dec()

	r := result{obj: obj}
	if obj.Type == backend.TypeError {
		r = result{err: remoteError(obj)}
	}

	select {
	case v.(chan result) <- r:
	default:
	}
}

func remoteError(obj backend.Object) error {
	e, err := backend.DecodeAs[backend.Error](obj)
	if err != nil {
		return &RemoteError{Code: -1, Message: "undecodable error object"}
	}

	return &RemoteError{Code: e.Code, Message: e.Message}
}

// Close stops the receive loop, fails every pending call with ErrClosed,
// closes all subscriptions, and closes the channel.
func (b *Bridge) Close() error {
	var err error

	b.closeOnce.Do(func() {
		b.shutdown()

		b.runMu.Lock()
		cancel := b.cancelRun
		b.runMu.Unlock()

		if cancel != nil {
			cancel()
		}

		err = b.ch.Close()
	})

	return err
}

// shutdown marks the bridge closed and releases every waiter. Safe to call
// from both Close and the receive loop.
func (b *Bridge) shutdown() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.pending.Range(func(key, v any) bool {
		if _, ok := b.pending.LoadAndDelete(key); ok {
			metrics.BridgePendingCalls.Dec()

			select {
			case v.(chan result) <- result{err: ErrClosed}:
			default:
			}
		}

		return true
	})

	b.subsMu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.subsMu.Unlock()

	for s := range subs {
		s.close()
	}
}
