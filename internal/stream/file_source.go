package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/tonimelisma/cloudplay/internal/metrics"
)

const (
	sourceFile = "file"
	sourceHTTP = "http"
)

// FileSource is the generic source for local files (file:// or a bare path)
// and plain http(s) URLs. It reads straight through; there is no waiting for
// data that has not arrived.
type FileSource struct {
	client    *http.Client
	logger    *slog.Logger
	listeners listenerSet

	readMu sync.Mutex // serializes Read

	mu        sync.Mutex
	open      bool
	gen       uint64 // bumped by Close
	spec      DataSpec
	body      io.ReadCloser
	remaining int64
}

// NewFileSource creates a closed FileSource. A nil client uses
// http.DefaultClient.
func NewFileSource(client *http.Client, logger *slog.Logger) *FileSource {
	if client == nil {
		client = http.DefaultClient
	}

	return &FileSource{client: client, logger: logger, remaining: LengthUnset}
}

func (s *FileSource) AddTransferListener(l TransferListener) {
	s.listeners.add(l)
}

func (s *FileSource) URI() *url.URL {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}

	return s.spec.URI
}

// Open starts reading spec.URI at spec.Position. The returned length is the
// number of bytes that will be served, or LengthUnset if the server did not
// say.
func (s *FileSource) Open(ctx context.Context, spec DataSpec) (int64, error) {
	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return 0, ErrAlreadyOpen
	}
	s.mu.Unlock()

	if spec.URI == nil {
		return 0, fmt.Errorf("%w: missing uri", ErrInvalidRequestIdentifier)
	}

	s.listeners.initializing(s, spec)

	var (
		body   io.ReadCloser
		length int64
		err    error
		kind   string
	)

	switch spec.URI.Scheme {
	case "", "file":
		kind = sourceFile
		body, length, err = openLocal(spec)
	case "http", "https":
		kind = sourceHTTP
		body, length, err = s.openHTTP(ctx, spec)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, spec.URI.Scheme)
	}

	if err != nil {
		metrics.StreamOpensTotal.WithLabelValues(kind, "error").Inc()
		return 0, err
	}

	if spec.Length >= 0 && (length == LengthUnset || spec.Length < length) {
		length = spec.Length
	}

	s.mu.Lock()
	s.open = true
	s.spec = spec
	s.body = body
	s.remaining = length
	s.mu.Unlock()

	metrics.StreamOpensTotal.WithLabelValues(kind, "ok").Inc()
	s.logger.Debug("stream opened",
		slog.String("uri", spec.URI.Redacted()),
		slog.Int64("position", spec.Position),
		slog.Int64("length", length),
	)

	s.listeners.started(s, spec)

	return length, nil
}

func openLocal(spec DataSpec) (io.ReadCloser, int64, error) {
	path := spec.URI.Path
	if path == "" {
		path = spec.URI.Opaque
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stream: opening %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stream: stat %s: %w", path, err)
	}

	if spec.Position > info.Size() {
		f.Close()
		return nil, 0, fmt.Errorf("stream: position %d beyond size %d of %s", spec.Position, info.Size(), path)
	}

	if _, err := f.Seek(spec.Position, io.SeekStart); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stream: seeking %s: %w", path, err)
	}

	return f, info.Size() - spec.Position, nil
}

func (s *FileSource) openHTTP(ctx context.Context, spec DataSpec) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URI.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("stream: building request: %w", err)
	}

	if spec.Position > 0 || spec.Length >= 0 {
		rng := "bytes=" + strconv.FormatInt(spec.Position, 10) + "-"
		if spec.Length >= 0 {
			rng += strconv.FormatInt(spec.Position+spec.Length-1, 10)
		}

		req.Header.Set("Range", rng)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("stream: requesting %s: %w", spec.URI.Redacted(), err)
	}

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range; skip to the requested position.
		if spec.Position > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, spec.Position); err != nil {
				resp.Body.Close()
				return nil, 0, fmt.Errorf("stream: skipping to %d: %w", spec.Position, err)
			}

			if resp.ContentLength >= 0 {
				resp.ContentLength -= spec.Position
			}
		}
	default:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("stream: requesting %s: HTTP %d", spec.URI.Redacted(), resp.StatusCode)
	}

	length := resp.ContentLength
	if length < 0 {
		length = LengthUnset
	}

	return resp.Body, length, nil
}

// Read serves bytes until the requested length or the end of the resource.
// The body is read without holding mu, so a concurrent Close unblocks it.
func (s *FileSource) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	s.mu.Lock()
	open, gen, spec, body, remaining := s.open, s.gen, s.spec, s.body, s.remaining
	s.mu.Unlock()

	if !open {
		return 0, ErrSessionNotOpen
	}

	if len(p) == 0 {
		return 0, nil
	}

	if remaining == 0 {
		return 0, io.EOF
	}

	if remaining != LengthUnset && int64(len(p)) > remaining {
		p = p[:remaining]
	}

	n, err := body.Read(p)

	s.mu.Lock()
	closed := s.gen != gen
	if !closed && n > 0 && s.remaining != LengthUnset {
		s.remaining -= int64(n)
	}
	s.mu.Unlock()

	if closed {
		return 0, ErrSessionNotOpen
	}

	if n > 0 {
		s.listeners.transferred(s, spec, n)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("stream: reading %s: %w", spec.URI.Redacted(), err)
	}

	return n, err
}

// Close releases the underlying file or response. Safe to call more than once.
func (s *FileSource) Close() error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return nil
	}

	s.open = false
	s.gen++
	body, spec := s.body, s.spec
	s.body = nil
	s.remaining = LengthUnset
	s.mu.Unlock()

	var err error
	if cerr := body.Close(); cerr != nil {
		err = fmt.Errorf("stream: closing %s: %w", spec.URI.Redacted(), cerr)
	}

	s.listeners.ended(s, spec)

	return err
}
