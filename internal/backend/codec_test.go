package backend

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_AddsTypeAndExtra(t *testing.T) {
	frame, err := Encode("tok-1", DownloadFile{FileID: 7, Priority: 32})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(frame, &fields))

	assert.Equal(t, "downloadFile", fields["@type"])
	assert.Equal(t, "tok-1", fields["@extra"])
	assert.EqualValues(t, 7, fields["file_id"])
	assert.EqualValues(t, 32, fields["priority"])
	assert.Equal(t, false, fields["synchronous"])
}

func TestEncode_EmptyExtraOmitted(t *testing.T) {
	frame, err := Encode("", LogOut{})
	require.NoError(t, err)

	assert.JSONEq(t, `{"@type":"logOut"}`, string(frame))
}

func TestDecode_File(t *testing.T) {
	frame := []byte(`{"@type":"file","@extra":"abc","id":3,"size":1000,` +
		`"local":{"path":"/tmp/a.mp3","is_downloading_completed":false,"downloaded_prefix_size":512},` +
		`"remote":{"id":"AgAD"}}`)

	obj, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, obj.Type)
	assert.Equal(t, "abc", obj.Extra)

	f, err := DecodeAs[File](obj)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.ID)
	assert.Equal(t, int64(1000), f.Size)
	assert.Equal(t, "/tmp/a.mp3", f.Local.Path)
	assert.Equal(t, int64(512), f.Local.DownloadedPrefixSize)
	assert.Equal(t, "AgAD", f.Remote.ID)
}

func TestDecode_NumericExtraKeptAsText(t *testing.T) {
	obj, err := Decode([]byte(`{"@type":"ok","@extra":42}`))
	require.NoError(t, err)
	assert.Equal(t, "42", obj.Extra)
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{nope`},
		{"missing type", `{"@extra":"x"}`},
		{"array", `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestDecode_AudioMessage(t *testing.T) {
	frame := []byte(`{"@type":"messages","total_count":1,"messages":[{"id":11,"chat_id":-100,"date":1700000000,` +
		`"content":{"@type":"messageAudio","audio":{"duration":180,"title":"Song","performer":"Band",` +
		`"file_name":"song.mp3","mime_type":"audio/mpeg","audio":{"id":5,"size":4096,"remote":{"id":"R5"}}}}}]}`)

	obj, err := Decode(frame)
	require.NoError(t, err)

	msgs, err := DecodeAs[Messages](obj)
	require.NoError(t, err)
	require.Len(t, msgs.Messages, 1)

	m := msgs.Messages[0]
	assert.Equal(t, TypeMessageAudio, m.Content.Type)
	require.NotNil(t, m.Content.Audio)
	assert.Equal(t, "Song", m.Content.Audio.Title)
	assert.Equal(t, int32(5), m.Content.Audio.Audio.ID)
	assert.Equal(t, "R5", m.Content.Audio.Audio.Remote.ID)
}

func TestNewObject_RoundTripsThroughDecodeAs(t *testing.T) {
	obj, err := NewObject(TypeError, "e1", Error{Code: 404, Message: "Not Found"})
	require.NoError(t, err)

	decoded, err := Decode(obj.Raw)
	require.NoError(t, err)
	assert.Equal(t, "e1", decoded.Extra)

	e, err := DecodeAs[Error](decoded)
	require.NoError(t, err)
	assert.Equal(t, 404, e.Code)
	assert.Equal(t, "Not Found", e.Message)
}

func TestNewObject_NilBody(t *testing.T) {
	obj, err := NewObject(TypeOk, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"@type":"ok"}`, string(obj.Raw))
}
