// Package stream serves media bytes to a playback pipeline. A Dispatcher
// picks, per URI scheme, either the generic file/HTTP source or the
// progressive Reader, which reads a remote file while the backend is still
// downloading it.
package stream

import (
	"context"
	"errors"
	"net/url"
	"sync"
)

// LengthUnset marks an unknown or unbounded length.
const LengthUnset int64 = -1

// SchemeRemoteFile is the URI scheme served by the progressive Reader:
// remote-file://<id> or remote-file:///<id>.
const SchemeRemoteFile = "remote-file"

// Sentinel errors. Use errors.Is to check.
var (
	ErrInvalidRequestIdentifier = errors.New("stream: invalid request identifier")
	ErrFileNotLocated           = errors.New("stream: file not located")
	ErrSessionNotOpen           = errors.New("stream: session not open")
	ErrAlreadyOpen              = errors.New("stream: session already open")
	ErrUnsupportedScheme        = errors.New("stream: unsupported scheme")
)

// DataSpec describes one read request: where to read from, the starting
// byte, and how many bytes (LengthUnset for "until the end").
type DataSpec struct {
	URI      *url.URL
	Position int64
	Length   int64
}

// Source is a pull-based byte source. Open must precede Read; Close ends
// the session and may be called from another goroutine to interrupt a
// blocked Read.
type Source interface {
	Open(ctx context.Context, spec DataSpec) (int64, error)
	Read(p []byte) (int, error)
	URI() *url.URL
	Close() error
	AddTransferListener(l TransferListener)
}

// TransferListener observes a source's transfer lifecycle. Calls are made on
// the goroutine driving the source and must not block.
type TransferListener interface {
	TransferInitializing(src Source, spec DataSpec)
	TransferStarted(src Source, spec DataSpec)
	BytesTransferred(src Source, spec DataSpec, n int)
	TransferEnded(src Source, spec DataSpec)
}

// listenerSet is a goroutine-safe list of listeners.
type listenerSet struct {
	mu        sync.Mutex
	listeners []TransferListener
}

func (s *listenerSet) add(l TransferListener) {
	if l == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.listeners = append(s.listeners, l)
}

func (s *listenerSet) snapshot() []TransferListener {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TransferListener, len(s.listeners))
	copy(out, s.listeners)

	return out
}

func (s *listenerSet) initializing(src Source, spec DataSpec) {
	for _, l := range s.snapshot() {
		l.TransferInitializing(src, spec)
	}
}

func (s *listenerSet) started(src Source, spec DataSpec) {
	for _, l := range s.snapshot() {
		l.TransferStarted(src, spec)
	}
}

func (s *listenerSet) transferred(src Source, spec DataSpec, n int) {
	for _, l := range s.snapshot() {
		l.BytesTransferred(src, spec, n)
	}
}

func (s *listenerSet) ended(src Source, spec DataSpec) {
	for _, l := range s.snapshot() {
		l.TransferEnded(src, spec)
	}
}
