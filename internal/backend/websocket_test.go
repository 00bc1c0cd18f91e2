package backend

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// echoGateway answers every request with an "ok" carrying the same @extra,
// after first sending one garbage frame.
func echoGateway(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}

			req, err := Decode(data)
			if err != nil {
				return
			}

			if err := conn.Write(ctx, websocket.MessageText, []byte(`not json`)); err != nil {
				return
			}

			reply, err := NewObject(TypeOk, req.Extra, nil)
			if err != nil {
				return
			}

			if err := conn.Write(ctx, websocket.MessageText, reply.Raw); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSChannel_SendAndReceive(t *testing.T) {
	srv := echoGateway(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")

	ch, err := Dial(ctx, wsURL(srv), DialOptions{Header: header}, testLogger(t))
	require.NoError(t, err)

	received := make(chan Object, 4)

	runDone := make(chan error, 1)
	go func() {
		runDone <- ch.Run(ctx, func(obj Object) { received <- obj })
	}()

	frame, err := Encode("req-1", GetFile{FileID: 1})
	require.NoError(t, err)
	require.NoError(t, ch.Send(ctx, frame))

	select {
	case obj := <-received:
		// The garbage frame is skipped, so the first delivery is the reply.
		assert.Equal(t, TypeOk, obj.Type)
		assert.Equal(t, "req-1", obj.Extra)
	case <-ctx.Done():
		t.Fatal("timed out waiting for reply")
	}

	_ = ch.Close()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestDial_RejectedHandshake(t *testing.T) {
	srv := echoGateway(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := Dial(ctx, wsURL(srv), DialOptions{}, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401")
}

func TestWSChannel_RunStopsOnContextCancel(t *testing.T) {
	srv := echoGateway(t)
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer secret")

	ch, err := Dial(context.Background(), wsURL(srv), DialOptions{Header: header}, testLogger(t))
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() {
		runDone <- ch.Run(ctx, func(Object) {})
	}()

	cancel()

	select {
	case err := <-runDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
