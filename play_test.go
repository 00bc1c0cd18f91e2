package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudplay/internal/stream"
)

func TestParsePlayURI(t *testing.T) {
	u, err := parsePlayURI("42")
	require.NoError(t, err)
	assert.Equal(t, stream.SchemeRemoteFile, u.Scheme)

	id, err := stream.ParseFileID(u)
	require.NoError(t, err)
	assert.Equal(t, int32(42), id)

	u, err = parsePlayURI("file:///music/track.flac")
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme)
	assert.Equal(t, "/music/track.flac", u.Path)

	u, err = parsePlayURI("https://cdn.example/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "https", u.Scheme)
}

func TestParsePlayURI_NonPositiveID(t *testing.T) {
	_, err := parsePlayURI("0")
	require.Error(t, err)

	_, err = parsePlayURI("-3")
	require.Error(t, err)
}

func TestCopyStream_LocalFileRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello, progressive world"), 0o600))

	u, err := parsePlayURI("file://" + path)
	require.NoError(t, err)

	factory := stream.Factory{HTTPClient: defaultHTTPClient(), Logger: discardLogger()}

	var out bytes.Buffer

	n, err := copyStream(context.Background(), factory.New(),
		stream.DataSpec{URI: u, Position: 7, Length: 11}, &out, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.Equal(t, "progressive", out.String())
}

func TestCopyStream_OpenError(t *testing.T) {
	u, err := parsePlayURI("file://" + filepath.Join(t.TempDir(), "missing.bin"))
	require.NoError(t, err)

	factory := stream.Factory{HTTPClient: defaultHTTPClient(), Logger: discardLogger()}

	_, err = copyStream(context.Background(), factory.New(),
		stream.DataSpec{URI: u, Length: stream.LengthUnset}, &bytes.Buffer{}, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening")
}

func TestOpenPlayOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")

	w, closeOut, err := openPlayOutput(path, false)
	require.NoError(t, err)

	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	closeOut()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}
