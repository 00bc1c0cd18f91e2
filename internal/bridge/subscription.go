package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/metrics"
)

// Subscription receives every object the gateway sends: pushed updates and
// call responses, including late ones nobody waits for. Delivery never
// blocks the receive loop: when the buffer is full the oldest queued event is
// discarded to make room, and Dropped counts the loss.
type Subscription struct {
	b       *Bridge
	ch      chan backend.Object
	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Subscribe registers a new subscriber. On a closed bridge the returned
// subscription's channel is already closed.
func (b *Bridge) Subscribe() *Subscription {
	s := &Subscription{b: b, ch: make(chan backend.Object, b.eventBuffer)}

	b.subsMu.Lock()
	defer b.subsMu.Unlock()

	if b.closed.Load() {
		s.close()
		return s
	}

	b.subs[s] = struct{}{}

	return s
}

// Events is closed when the subscription or the bridge is closed.
func (s *Subscription) Events() <-chan backend.Object {
	return s.ch
}

// Dropped reports how many events were discarded for this subscriber.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.b.subsMu.Lock()
	delete(s.b.subs, s)
	s.b.subsMu.Unlock()

	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.closed = true
	close(s.ch)
}

func (s *Subscription) offer(obj backend.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.ch <- obj:
		return
	default:
	}

	select {
	case <-s.ch:
		s.dropped.Add(1)
		metrics.BridgeDroppedEvents.Inc()
	default:
	}

	select {
	case s.ch <- obj:
	default:
		s.dropped.Add(1)
		metrics.BridgeDroppedEvents.Inc()
	}
}

func (b *Bridge) publish(obj backend.Object) {
	b.subsMu.RLock()
	defer b.subsMu.RUnlock()

	for s := range b.subs {
		s.offer(obj)
	}
}
