package main

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/backend/backendtest"
	"github.com/tonimelisma/cloudplay/internal/bridge"
	"github.com/tonimelisma/cloudplay/internal/config"
	"github.com/tonimelisma/cloudplay/internal/session"
	"github.com/tonimelisma/cloudplay/internal/tokenfile"
)

func testResolved(t *testing.T) *config.Resolved {
	t.Helper()

	return &config.Resolved{Config: config.DefaultConfig(), DataDir: t.TempDir()}
}

func TestStallRetries(t *testing.T) {
	assert.Equal(t, -1, stallRetries(0))
	assert.Equal(t, 5, stallRetries(5))
}

func TestGatewayToken(t *testing.T) {
	r := testResolved(t)

	tok, err := gatewayToken(r)
	require.NoError(t, err)
	assert.Nil(t, tok)

	require.NoError(t, tokenfile.Save(config.TokenFilePath(r.DataDir), tokenfile.Bearer("from-file"), nil))

	tok, err = gatewayToken(r)
	require.NoError(t, err)
	assert.Equal(t, "from-file", tok.AccessToken)

	r.GatewayToken = "from-env"

	tok, err = gatewayToken(r)
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok.AccessToken)
}

func TestGatewayHTTPClient(t *testing.T) {
	assert.Same(t, http.DefaultClient, gatewayHTTPClient(context.Background(), nil))
	assert.NotSame(t, http.DefaultClient, gatewayHTTPClient(context.Background(), tokenfile.Bearer("t")))
}

func newFakeSession(t *testing.T) (*backendtest.Gateway, *gatewaySession) {
	t.Helper()

	gw := backendtest.New()
	gw.Handle(backend.SetTdlibParameters{}.Type(), backendtest.Reply(backend.TypeOk, nil))

	cfg := testResolved(t)
	b := bridge.New(gw, tdlibParameters(&cfg.Backend), bridge.Options{EventBuffer: 16, CallTimeout: time.Second},
		discardLogger())

	gs := startSession(context.Background(), b, cfg, discardLogger())
	t.Cleanup(func() { _ = gs.Close() })

	return gw, gs
}

func pushState(gw *backendtest.Gateway, state string) {
	gw.Push(backend.TypeUpdateAuthorizationState,
		backend.UpdateAuthorizationState{AuthorizationState: backend.Tagged{Type: state}})
}

func TestStartSession_SendsParametersAndTracksPhase(t *testing.T) {
	gw, gs := newFakeSession(t)

	pushState(gw, session.StateWaitTdlibParameters)
	pushState(gw, session.StateWaitPhoneNumber)

	p, err := gs.WaitSettled(context.Background(), "2s")
	require.NoError(t, err)
	assert.Equal(t, session.AwaitingPhoneNumber, p)

	require.Eventually(t, func() bool {
		return gw.Count(backend.SetTdlibParameters{}.Type()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	err = gs.RequireReady(context.Background(), "2s")
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestStartSession_Ready(t *testing.T) {
	gw, gs := newFakeSession(t)

	pushState(gw, session.StateReady)

	require.NoError(t, gs.RequireReady(context.Background(), "2s"))
}

func TestWaitSettled_Timeout(t *testing.T) {
	_, gs := newFakeSession(t)

	p, err := gs.WaitSettled(context.Background(), "50ms")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, session.Unauthenticated, p)
}

func TestTDLibParameters(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.DatabaseDir = filepath.Join("/data", "backend")
	cfg.Backend.APIID = 12345

	params := tdlibParameters(&cfg.Backend)
	assert.Equal(t, cfg.Backend.DatabaseDir, params.DatabaseDirectory)
	assert.EqualValues(t, 12345, params.APIID)
}
