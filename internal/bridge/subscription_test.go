package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/backend/backendtest"
)

func authUpdate(state string) backend.UpdateAuthorizationState {
	return backend.UpdateAuthorizationState{AuthorizationState: backend.Tagged{Type: state}}
}

func TestSubscribe_ReceivesUpdates(t *testing.T) {
	gw := backendtest.New()
	b := newTestBridge(t, gw, Options{})

	sub := b.Subscribe()
	defer sub.Close()

	gw.Push(backend.TypeUpdateAuthorizationState, authUpdate("authorizationStateWaitPhoneNumber"))

	select {
	case obj := <-sub.Events():
		assert.Equal(t, backend.TypeUpdateAuthorizationState, obj.Type)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestSubscribe_ResponsesArePublished(t *testing.T) {
	gw := backendtest.New()
	gw.Handle("getFile", backendtest.Reply(backend.TypeFile, backend.File{ID: 1}))

	b := newTestBridge(t, gw, Options{})
	sub := b.Subscribe()
	defer sub.Close()

	obj, err := b.Call(context.Background(), backend.GetFile{FileID: 1})
	require.NoError(t, err)
	assert.Equal(t, backend.TypeFile, obj.Type)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, backend.TypeFile, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("response not published")
	}
}

func TestSubscribe_OrphanResponseIsPublished(t *testing.T) {
	b := New(backendtest.New(), backend.SetTdlibParameters{}, Options{}, testLogger(t))
	sub := b.Subscribe()

	obj, err := backend.NewObject(backend.TypeFile, "abandoned-call", backend.File{ID: 7})
	require.NoError(t, err)
	b.dispatch(obj)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, "abandoned-call", ev.Extra)
	default:
		t.Fatal("orphan response not published")
	}
}

func TestSubscribe_DropsOldestWhenFull(t *testing.T) {
	b := New(backendtest.New(), backend.SetTdlibParameters{}, Options{EventBuffer: 2}, testLogger(t))
	sub := b.Subscribe()

	for i := range 5 {
		obj, err := backend.NewObject(backend.TypeUpdateFile, "", backend.UpdateFile{File: backend.File{ID: int32(i)}})
		require.NoError(t, err)
		b.dispatch(obj)
	}

	assert.Equal(t, uint64(3), sub.Dropped())

	var ids []int32

	for range 2 {
		u, err := backend.DecodeAs[backend.UpdateFile](<-sub.Events())
		require.NoError(t, err)
		ids = append(ids, u.File.ID)
	}

	assert.Equal(t, []int32{3, 4}, ids)
}

func TestSubscribe_ClosedByBridgeClose(t *testing.T) {
	gw := backendtest.New()
	b := newTestBridge(t, gw, Options{})
	sub := b.Subscribe()

	require.NoError(t, b.Close())

	_, ok := <-sub.Events()
	assert.False(t, ok)

	late := b.Subscribe()
	_, ok = <-late.Events()
	assert.False(t, ok)

	sub.Close()
}

func TestSubscribe_MultipleSubscribersEachGetEvent(t *testing.T) {
	b := New(backendtest.New(), backend.SetTdlibParameters{}, Options{}, testLogger(t))
	a, c := b.Subscribe(), b.Subscribe()

	obj, err := backend.NewObject(backend.TypeUpdateAuthorizationState, "", authUpdate("authorizationStateReady"))
	require.NoError(t, err)
	b.dispatch(obj)

	assert.Equal(t, backend.TypeUpdateAuthorizationState, (<-a.Events()).Type)
	assert.Equal(t, backend.TypeUpdateAuthorizationState, (<-c.Events()).Type)
}
