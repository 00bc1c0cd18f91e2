package download

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/backend/backendtest"
	"github.com/tonimelisma/cloudplay/internal/bridge"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newFixture(t *testing.T, opts Options) (*backendtest.Gateway, *Orchestrator) {
	t.Helper()

	gw := backendtest.New()
	gw.Handle("setTdlibParameters", backendtest.Reply(backend.TypeOk, nil))
	gw.Handle("downloadFile", backendtest.Reply(backend.TypeFile, backend.File{ID: 7}))

	b := bridge.New(gw, backend.SetTdlibParameters{}, bridge.Options{}, testLogger(t))
	b.Start(context.Background())
	t.Cleanup(func() { _ = b.Close() })

	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}

	return gw, New(b, opts, testLogger(t))
}

func withPath(path string) backendtest.Handler {
	return backendtest.Reply(backend.TypeFile, backend.File{ID: 7, Local: backend.LocalFile{Path: path}})
}

func TestWaitForPath_PathOnThirdPoll(t *testing.T) {
	gw, o := newFixture(t, Options{PollAttempts: 20})
	gw.Handle("getFile", backendtest.Sequence(withPath(""), withPath(""), withPath("/files/7.mp3")))

	path, err := o.WaitForPath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/files/7.mp3", path)
	assert.Equal(t, 3, gw.Count("getFile"))

	// The trigger is awaited before polling starts.
	all := gw.Requests("")
	var types []string
	for _, r := range all {
		if r.Type != "setTdlibParameters" {
			types = append(types, r.Type)
		}
	}
	require.NotEmpty(t, types)
	assert.Equal(t, "downloadFile", types[0])

	dl := backendtest.Decode[backend.DownloadFile](gw.Requests("downloadFile")[0])
	assert.Equal(t, int32(7), dl.FileID)
	assert.Equal(t, int32(DefaultPriority), dl.Priority)
	assert.Equal(t, int64(0), dl.Offset)
	assert.Equal(t, int64(0), dl.Limit)
	assert.False(t, dl.Synchronous)
}

func TestWaitForPath_ExactlyNPollsThenNotLocated(t *testing.T) {
	gw, o := newFixture(t, Options{PollAttempts: 4})
	gw.Handle("getFile", withPath(""))

	_, err := o.WaitForPath(context.Background(), 7)
	require.ErrorIs(t, err, ErrFileNotLocated)
	assert.Equal(t, 4, gw.Count("getFile"))
}

func TestWaitForPath_StatusErrorsCountAsNotYet(t *testing.T) {
	gw, o := newFixture(t, Options{PollAttempts: 5})
	gw.Handle("getFile", backendtest.Sequence(
		backendtest.Fail(500, "INTERNAL"),
		backendtest.Fail(500, "INTERNAL"),
		withPath("/files/7.mp3"),
	))

	path, err := o.WaitForPath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/files/7.mp3", path)
}

func TestWaitForPath_TriggerFailureIgnored(t *testing.T) {
	gw, o := newFixture(t, Options{PollAttempts: 3})
	gw.Handle("downloadFile", backendtest.Fail(400, "FILE_ID_INVALID"))
	gw.Handle("getFile", withPath("/files/7.mp3"))

	path, err := o.WaitForPath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/files/7.mp3", path)
}

func TestWaitForPath_SynchronousFlagForwarded(t *testing.T) {
	gw, o := newFixture(t, Options{Synchronous: true, Priority: 5})
	gw.Handle("getFile", withPath("/p"))

	_, err := o.WaitForPath(context.Background(), 7)
	require.NoError(t, err)

	dl := backendtest.Decode[backend.DownloadFile](gw.Requests("downloadFile")[0])
	assert.True(t, dl.Synchronous)
	assert.Equal(t, int32(5), dl.Priority)
}

func TestWaitForPath_Cancelled(t *testing.T) {
	gw, o := newFixture(t, Options{PollInterval: time.Hour, PollAttempts: 20})
	gw.Handle("getFile", withPath(""))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := o.WaitForPath(ctx, 7)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrFileNotLocated)
}

func TestImmediatePath_KnownPathReturnsAtOnce(t *testing.T) {
	gw, o := newFixture(t, Options{})
	gw.Handle("getFile", withPath("/files/7.mp3"))

	path, err := o.ImmediatePath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/files/7.mp3", path)
	assert.Equal(t, 1, gw.Count("getFile"))

	// The download is still requested, in the background.
	require.Eventually(t, func() bool { return gw.Count("downloadFile") == 1 }, time.Second, time.Millisecond)
}

func TestImmediatePath_UnknownPathFallsBackToWaiting(t *testing.T) {
	gw, o := newFixture(t, Options{PollAttempts: 5})
	gw.Handle("getFile", backendtest.Sequence(withPath(""), withPath(""), withPath("/files/7.mp3")))

	path, err := o.ImmediatePath(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "/files/7.mp3", path)
	assert.Equal(t, 1, gw.Count("downloadFile"))
}

func TestPathByRemoteID(t *testing.T) {
	gw, o := newFixture(t, Options{})
	gw.Handle("getRemoteFile", backendtest.Reply(backend.TypeFile, backend.File{ID: 9, Remote: backend.RemoteFile{ID: "AgAD"}}))
	gw.Handle("getFile", func(req backendtest.Request) *backendtest.Response {
		fn := backendtest.Decode[backend.GetFile](req)
		if fn.FileID != 9 {
			return &backendtest.Response{Type: backend.TypeError, Body: backend.Error{Code: 404, Message: "wrong id"}}
		}

		return &backendtest.Response{Type: backend.TypeFile, Body: backend.File{ID: 9, Local: backend.LocalFile{Path: "/files/9.mp3"}}}
	})

	path, err := o.PathByRemoteID(context.Background(), "AgAD")
	require.NoError(t, err)
	assert.Equal(t, "/files/9.mp3", path)

	req := backendtest.Decode[backend.GetRemoteFile](gw.Requests("getRemoteFile")[0])
	assert.Equal(t, "AgAD", req.RemoteFileID)
	require.NotNil(t, req.FileType)
	assert.Equal(t, backend.TypeFileTypeAudio, req.FileType.Type)
}

func TestPathByRemoteID_ResolveFails(t *testing.T) {
	gw, o := newFixture(t, Options{})
	gw.Handle("getRemoteFile", backendtest.Fail(400, "WRONG_REMOTE_FILE_ID"))

	_, err := o.PathByRemoteID(context.Background(), "bad")
	require.ErrorIs(t, err, bridge.ErrRemoteCallFailed)
	assert.Equal(t, 0, gw.Count("getFile"))
}

func TestCompleted(t *testing.T) {
	gw, o := newFixture(t, Options{})
	gw.Handle("getFile", backendtest.Sequence(
		backendtest.Reply(backend.TypeFile, backend.File{ID: 7, Size: 100, Local: backend.LocalFile{Path: "/p"}}),
		backendtest.Reply(backend.TypeFile, backend.File{ID: 7, Size: 100,
			Local: backend.LocalFile{Path: "/p", IsDownloadingCompleted: true, DownloadedSize: 100}}),
	))

	done, _, err := o.Completed(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, done)

	done, size, err := o.Completed(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(100), size)
}
