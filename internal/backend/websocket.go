package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// defaultReadLimit bounds a single frame. Chat history pages with many
// messages run to a few hundred KiB.
const defaultReadLimit = 8 << 20

// DialOptions configures a websocket connection to the gateway.
type DialOptions struct {
	Header     http.Header  // e.g. an Authorization header for the gateway
	HTTPClient *http.Client // nil uses http.DefaultClient
	ReadLimit  int64        // 0 uses defaultReadLimit
}

// WSChannel is a Channel over a websocket connection carrying one JSON
// object per text message.
type WSChannel struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the gateway at url.
func Dial(ctx context.Context, url string, opts DialOptions, logger *slog.Logger) (*WSChannel, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: opts.HTTPClient,
		HTTPHeader: opts.Header,
	})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("backend: dialing %s: HTTP %d: %w", url, resp.StatusCode, err)
		}

		return nil, fmt.Errorf("backend: dialing %s: %w", url, err)
	}

	limit := opts.ReadLimit
	if limit <= 0 {
		limit = defaultReadLimit
	}

	conn.SetReadLimit(limit)

	logger.Debug("gateway connected", slog.String("url", url))

	return NewWSChannel(conn, logger), nil
}

// NewWSChannel wraps an established connection. Servers and tests use it
// with a connection obtained from websocket.Accept.
func NewWSChannel(conn *websocket.Conn, logger *slog.Logger) *WSChannel {
	return &WSChannel{conn: conn, logger: logger}
}

// Send writes one frame. The websocket library serializes concurrent writers.
func (c *WSChannel) Send(ctx context.Context, frame []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		if websocket.CloseStatus(err) != -1 {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}

		return fmt.Errorf("backend: sending frame: %w", err)
	}

	return nil
}

// Run reads frames until the connection closes. A normal closure returns
// nil. Frames that fail to decode are logged and skipped.
func (c *WSChannel) Run(ctx context.Context, handle func(Object)) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}

			return fmt.Errorf("backend: reading frame: %w", err)
		}

		if typ != websocket.MessageText {
			c.logger.Debug("ignoring binary frame", slog.Int("bytes", len(data)))
			continue
		}

		obj, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping undecodable frame",
				slog.String("error", err.Error()),
				slog.Int("bytes", len(data)),
			)

			continue
		}

		handle(obj)
	}
}

// Close performs a normal closure. Safe to call more than once.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() {
		err := c.conn.Close(websocket.StatusNormalClosure, "")
		if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) == -1 {
			c.closeErr = fmt.Errorf("backend: closing connection: %w", err)
		}
	})

	return c.closeErr
}
