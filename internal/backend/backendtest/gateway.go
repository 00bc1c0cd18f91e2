// Package backendtest provides an in-memory gateway for tests of packages
// that talk to the backend through a Channel.
package backendtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tonimelisma/cloudplay/internal/backend"
)

const inboxSize = 4096

// Request is one frame the client sent.
type Request struct {
	Type  string
	Extra string
	Raw   json.RawMessage
}

// Decode unmarshals the request fields into T.
func Decode[T any](req Request) T {
	var v T
	_ = json.Unmarshal(req.Raw, &v) //nolint:errcheck // malformed requests decode to zero values

	return v
}

// Response is what a Handler answers with. A nil Response leaves the request
// unanswered.
type Response struct {
	Type string
	Body any
}

// Handler answers one request.
type Handler func(req Request) *Response

// Reply answers every request with the same object.
func Reply(typ string, body any) Handler {
	return func(Request) *Response {
		return &Response{Type: typ, Body: body}
	}
}

// Fail answers every request with a gateway error.
func Fail(code int, message string) Handler {
	return Reply(backend.TypeError, backend.Error{Code: code, Message: message})
}

// Sequence answers the n-th request with the n-th handler and keeps using the
// last one once the list is exhausted.
func Sequence(handlers ...Handler) Handler {
	var (
		mu sync.Mutex
		i  int
	)

	return func(req Request) *Response {
		mu.Lock()
		h := handlers[i]
		if i < len(handlers)-1 {
			i++
		}
		mu.Unlock()

		return h(req)
	}
}

// Gateway is an in-memory backend.Channel. Requests are answered by
// per-type handlers; responses and pushed updates are delivered by Run in
// the order they were produced.
type Gateway struct {
	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
	sendErr  error

	inbox     chan backend.Object
	closed    chan struct{}
	closeOnce sync.Once
}

// New returns a gateway with no handlers. Unhandled requests are recorded and
// never answered.
func New() *Gateway {
	return &Gateway{
		handlers: make(map[string]Handler),
		inbox:    make(chan backend.Object, inboxSize),
		closed:   make(chan struct{}),
	}
}

// Handle registers h for requests of the given function type.
func (g *Gateway) Handle(fnType string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.handlers[fnType] = h
}

// FailSends makes every subsequent Send return err. nil restores normal
// operation.
func (g *Gateway) FailSends(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sendErr = err
}

// Push delivers an unsolicited object, like an update.
func (g *Gateway) Push(typ string, body any) {
	obj, err := backend.NewObject(typ, "", body)
	if err != nil {
		panic(fmt.Sprintf("backendtest: encoding push %s: %v", typ, err))
	}

	g.inbox <- obj
}

// Requests returns every recorded request of the given type, or all of them
// when fnType is empty.
func (g *Gateway) Requests(fnType string) []Request {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Request

	for _, r := range g.requests {
		if fnType == "" || r.Type == fnType {
			out = append(out, r)
		}
	}

	return out
}

// Count returns how many requests of fnType were sent.
func (g *Gateway) Count(fnType string) int {
	return len(g.Requests(fnType))
}

// Send records the request and queues the handler's answer, if any.
func (g *Gateway) Send(_ context.Context, frame []byte) error {
	select {
	case <-g.closed:
		return backend.ErrClosed
	default:
	}

	obj, err := backend.Decode(frame)
	if err != nil {
		return err
	}

	req := Request{Type: obj.Type, Extra: obj.Extra, Raw: obj.Raw}

	g.mu.Lock()
	if g.sendErr != nil {
		err := g.sendErr
		g.mu.Unlock()

		return err
	}

	g.requests = append(g.requests, req)
	h := g.handlers[req.Type]
	g.mu.Unlock()

	if h == nil {
		return nil
	}

	resp := h(req)
	if resp == nil {
		return nil
	}

	out, err := backend.NewObject(resp.Type, req.Extra, resp.Body)
	if err != nil {
		return err
	}

	g.inbox <- out

	return nil
}

// Run delivers queued objects until ctx ends or the gateway is closed.
func (g *Gateway) Run(ctx context.Context, handle func(backend.Object)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.closed:
			return nil
		case obj := <-g.inbox:
			handle(obj)
		}
	}
}

// Close stops Run and rejects further sends.
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() { close(g.closed) })

	return nil
}
