package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudplay/internal/catalog"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/metrics"
	"github.com/tonimelisma/cloudplay/internal/session"
	"github.com/tonimelisma/cloudplay/internal/stream"
)

const testFileID = 7

var testTrack = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

// pathResolver knows the local path of a single file id.
type pathResolver struct {
	id   int32
	path string
}

func (p pathResolver) WaitForPath(_ context.Context, fileID int32) (string, error) {
	if fileID != p.id {
		return "", errors.New("file not found")
	}

	return p.path, nil
}

type doneProbe struct{ size int64 }

func (p doneProbe) Completed(context.Context, int32) (bool, int64, error) {
	return true, p.size, nil
}

// parkedSource serves nothing: Read blocks until Close.
type parkedSource struct {
	reading chan struct{}
	closed  chan struct{}
	once    sync.Once
}

func newParkedSource() *parkedSource {
	return &parkedSource{reading: make(chan struct{}, 1), closed: make(chan struct{})}
}

func (p *parkedSource) Open(context.Context, stream.DataSpec) (int64, error) { return 10, nil }

func (p *parkedSource) Read([]byte) (int, error) {
	select {
	case p.reading <- struct{}{}:
	default:
	}
	<-p.closed

	return 0, stream.ErrSessionNotOpen
}

func (p *parkedSource) URI() *url.URL { return nil }

func (p *parkedSource) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *parkedSource) AddTransferListener(stream.TransferListener) {}

type serverOption func(*streamServer)

func newTestServer(t *testing.T, opts ...serverOption) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "track.mp3")
	require.NoError(t, os.WriteFile(path, testTrack, 0o600))

	store, err := catalog.Open(context.Background(), filepath.Join(dir, "catalog.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	limiter, err := newBandwidthLimiter("0", discardLogger())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	resolver := pathResolver{id: testFileID, path: path}
	size := int64(len(testTrack))

	srv := &streamServer{
		newSource: func() stream.Source {
			return stream.NewReader(resolver, stream.ReaderOptions{
				StallRetries:     -1,
				FileWaitAttempts: 1,
				FileWaitInterval: time.Millisecond,
				Probe:            doneProbe{size: size},
			}, discardLogger())
		},
		size: func(_ context.Context, fileID int32) (int64, error) {
			if fileID != testFileID {
				return 0, nil
			}

			return size, nil
		},
		store:    store,
		sync:     func(context.Context) (catalog.SyncResult, error) { return catalog.SyncResult{Songs: 1}, nil },
		phase:    func() session.Phase { return session.Ready },
		limiter:  limiter,
		gatherer: reg,
		logger:   discardLogger(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)

	return ts
}

func get(t *testing.T, url string, header map[string]string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, http.NoBody)
	require.NoError(t, err)

	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestServeStream_Full(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/stream/7", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testTrack, body)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "36", resp.Header.Get("Content-Length"))
	assert.Equal(t, streamContentType, resp.Header.Get("Content-Type"))
}

func TestServeStream_Range(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/stream/7", map[string]string{"Range": "bytes=10-15"})

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "abcdef", string(body))
	assert.Equal(t, "bytes 10-15/36", resp.Header.Get("Content-Range"))
	assert.Equal(t, "6", resp.Header.Get("Content-Length"))
}

func TestServeStream_SuffixRange(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/stream/7", map[string]string{"Range": "bytes=-4"})

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "wxyz", string(body))
	assert.Equal(t, "bytes 32-35/36", resp.Header.Get("Content-Range"))
}

func TestServeStream_RangeNotSatisfiable(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/stream/7", map[string]string{"Range": "bytes=100-200"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, "bytes */36", resp.Header.Get("Content-Range"))
}

func TestServeStream_BadID(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/stream/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeStream_UnknownFile(t *testing.T) {
	ts := newTestServer(t)

	resp, _ := get(t, ts.URL+"/stream/99", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServeStream_StatusFailure(t *testing.T) {
	ts := newTestServer(t, func(s *streamServer) {
		s.size = func(context.Context, int32) (int64, error) { return 0, errors.New("gateway gone") }
	})

	resp, _ := get(t, ts.URL+"/stream/7", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServeStream_UnknownSizeIgnoresRange(t *testing.T) {
	ts := newTestServer(t, func(s *streamServer) {
		s.size = func(context.Context, int32) (int64, error) { return 0, nil }
	})

	resp, body := get(t, ts.URL+"/stream/7", map[string]string{"Range": "bytes=0-3"})

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, testTrack, body)
	assert.Empty(t, resp.Header.Get("Content-Range"))
}

func TestServeStream_ClientGoneClosesSource(t *testing.T) {
	src := newParkedSource()
	ts := newTestServer(t, func(s *streamServer) {
		s.newSource = func() stream.Source { return src }
	})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream/7", http.NoBody)
	require.NoError(t, err)

	go func() {
		resp, derr := http.DefaultClient.Do(req)
		if derr == nil {
			resp.Body.Close()
		}
	}()

	select {
	case <-src.reading:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never read from the source")
	}

	cancel()

	select {
	case <-src.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("source still open after the client went away")
	}
}

func TestServeSongs_EmptyCatalog(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/songs", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, "[]", string(body))
}

func TestServeHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"session":"ready"}`, string(body))

	ts = newTestServer(t, func(s *streamServer) {
		s.phase = func() session.Phase { return session.AwaitingCode }
	})

	resp, body = get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"session":"awaiting_code"}`, string(body))
}

func TestServeSync(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/sync", "application/json", http.NoBody) //nolint:noctx // test
	require.NoError(t, err)
	defer resp.Body.Close()

	var res catalog.SyncResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, res.Songs)
}

func TestServeSync_Busy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	ts := newTestServer(t, func(s *streamServer) {
		s.sync = func(context.Context) (catalog.SyncResult, error) {
			close(entered)
			<-release

			return catalog.SyncResult{}, nil
		}
	})

	first := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/sync", "application/json", http.NoBody) //nolint:noctx // test
		if err != nil {
			first <- 0
			return
		}
		resp.Body.Close()
		first <- resp.StatusCode
	}()

	<-entered

	resp, err := http.Post(ts.URL+"/sync", "application/json", http.NoBody) //nolint:noctx // test
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	assert.Equal(t, http.StatusOK, <-first)
}

func TestServeSync_Error(t *testing.T) {
	ts := newTestServer(t, func(s *streamServer) {
		s.sync = func(context.Context) (catalog.SyncResult, error) {
			return catalog.SyncResult{}, catalog.ErrNoLibraryChat
		}
	})

	resp, err := http.Post(ts.URL+"/sync", "application/json", http.NoBody) //nolint:noctx // test
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServeMetrics(t *testing.T) {
	ts := newTestServer(t)

	get(t, ts.URL+"/stream/7", nil)

	resp, body := get(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "cloudplay_"), "metrics are exposed under the cloudplay namespace")
}

func TestReloadConfig_ChangesBandwidth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[serve]\nbandwidth_limit = \"1MB/s\"\n"), 0o600))

	limiter, err := newBandwidthLimiter("0", discardLogger())
	require.NoError(t, err)

	holder := config.NewHolder(config.DefaultConfig(), path)

	require.NoError(t, reloadConfig(holder, limiter, discardLogger()))
	assert.Equal(t, "1MB/s", holder.Config().Serve.BandwidthLimit)
	assert.InDelta(t, 1_000_000, float64(limiter.limiter.Limit()), 1)
}

func TestReloadConfig_InvalidFileKeepsOld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[serve]\nbandwidth_limit = \"fast\"\n"), 0o600))

	limiter, err := newBandwidthLimiter("0", discardLogger())
	require.NoError(t, err)

	holder := config.NewHolder(config.DefaultConfig(), path)

	require.Error(t, reloadConfig(holder, limiter, discardLogger()))
	assert.Equal(t, config.DefaultConfig().Serve.BandwidthLimit, holder.Config().Serve.BandwidthLimit)
}
