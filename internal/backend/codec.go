package backend

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for frame handling.
var (
	ErrMalformedFrame = errors.New("backend: malformed frame")
	ErrClosed         = errors.New("backend: channel closed")
)

const (
	keyType  = "@type"
	keyExtra = "@extra"
)

// Object is one frame received from the gateway. The body stays raw until a
// consumer asks for a concrete type with DecodeAs.
type Object struct {
	Type  string
	Extra string
	Raw   json.RawMessage
}

// Encode serializes fn as a gateway request carrying the correlation token
// extra. An empty extra is omitted.
func Encode(extra string, fn Function) ([]byte, error) {
	return tagged(fn.Type(), extra, fn)
}

// tagged marshals v and merges the type tag and correlation token into the
// resulting JSON object.
func tagged(typ, extra string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("backend: encoding %s: %w", typ, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("backend: encoding %s: %w", typ, err)
	}

	if fields == nil {
		fields = make(map[string]json.RawMessage)
	}

	fields[keyType] = quote(typ)
	if extra != "" {
		fields[keyExtra] = quote(extra)
	}

	return json.Marshal(fields)
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s) //nolint:errcheck // strings always marshal

	return b
}

// Decode parses a received frame. Frames without a type tag are rejected.
func Decode(frame []byte) (Object, error) {
	var head struct {
		Type  string          `json:"@type"`
		Extra json.RawMessage `json:"@extra"`
	}

	if err := json.Unmarshal(frame, &head); err != nil {
		return Object{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	if head.Type == "" {
		return Object{}, fmt.Errorf("%w: missing %s", ErrMalformedFrame, keyType)
	}

	obj := Object{Type: head.Type, Raw: json.RawMessage(frame)}

	// The gateway echoes @extra verbatim; numeric tokens are kept as text.
	if len(head.Extra) > 0 {
		var s string
		if err := json.Unmarshal(head.Extra, &s); err == nil {
			obj.Extra = s
		} else {
			obj.Extra = string(head.Extra)
		}
	}

	return obj, nil
}

// DecodeAs unmarshals the object body into T.
func DecodeAs[T any](obj Object) (T, error) {
	var v T
	if err := json.Unmarshal(obj.Raw, &v); err != nil {
		return v, fmt.Errorf("backend: decoding %s: %w", obj.Type, err)
	}

	return v, nil
}

// NewObject builds an Object from a value and its type tag. Used by fakes
// and by code that synthesizes frames locally.
func NewObject(typ, extra string, v any) (Object, error) {
	raw, err := tagged(typ, extra, v)
	if err != nil {
		return Object{}, err
	}

	return Object{Type: typ, Extra: extra, Raw: raw}, nil
}
