package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/tonimelisma/cloudplay/internal/metrics"
)

// Dispatcher is the Source a player talks to. Each Open picks the
// progressive reader for remote-file URIs and the generic source for
// everything else; later calls go to whichever source was picked.
type Dispatcher struct {
	generic     Source
	progressive Source

	mu     sync.Mutex
	active Source
}

func NewDispatcher(generic, progressive Source) *Dispatcher {
	return &Dispatcher{generic: generic, progressive: progressive}
}

// Open selects the source for spec.URI and opens it. A source left open by
// an earlier cycle is closed first. The source is active while it opens, so
// Close can interrupt it; a failed open leaves no active source.
func (d *Dispatcher) Open(ctx context.Context, spec DataSpec) (int64, error) {
	src := d.generic
	if spec.URI != nil && spec.URI.Scheme == SchemeRemoteFile {
		src = d.progressive
	}

	d.mu.Lock()
	prev := d.active
	d.active = src
	d.mu.Unlock()

	if prev != nil {
		_ = prev.Close() //nolint:errcheck // the abandoned session has no reader left
	}

	length, err := src.Open(ctx, spec)
	if err != nil {
		d.mu.Lock()
		if d.active == src {
			d.active = nil
		}
		d.mu.Unlock()

		return 0, err
	}

	return length, nil
}

// Read delegates to the active source. With no active source it reports
// the end of the stream.
func (d *Dispatcher) Read(p []byte) (int, error) {
	d.mu.Lock()
	src := d.active
	d.mu.Unlock()

	if src == nil {
		return 0, io.EOF
	}

	return src.Read(p)
}

func (d *Dispatcher) URI() *url.URL {
	d.mu.Lock()
	src := d.active
	d.mu.Unlock()

	if src == nil {
		return nil
	}

	return src.URI()
}

// Close closes the active source. The dispatcher forgets the source even if
// closing it fails.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	src := d.active
	d.active = nil
	d.mu.Unlock()

	if src == nil {
		return nil
	}

	return src.Close()
}

// AddTransferListener registers l with both sources.
func (d *Dispatcher) AddTransferListener(l TransferListener) {
	d.generic.AddTransferListener(l)
	d.progressive.AddTransferListener(l)
}

// Factory builds one Dispatcher per playback with shared collaborators.
type Factory struct {
	Resolver   PathResolver
	Options    ReaderOptions
	HTTPClient *http.Client
	Logger     *slog.Logger
	Listeners  []TransferListener
}

// New returns a fresh Dispatcher with its own reader and generic source.
func (f Factory) New() *Dispatcher {
	d := NewDispatcher(
		NewFileSource(f.HTTPClient, f.Logger),
		NewReader(f.Resolver, f.Options, f.Logger),
	)

	for _, l := range f.Listeners {
		d.AddTransferListener(l)
	}

	return d
}

// MetricsListener feeds transfer events into the stream metrics.
type MetricsListener struct{}

func (MetricsListener) TransferInitializing(Source, DataSpec) {}

func (MetricsListener) TransferStarted(Source, DataSpec) {
	metrics.StreamActive.Inc()
}

func (MetricsListener) BytesTransferred(_ Source, _ DataSpec, n int) {
	metrics.StreamBytesTotal.Add(float64(n))
}

func (MetricsListener) TransferEnded(Source, DataSpec) {
	metrics.StreamActive.Dec()
}
