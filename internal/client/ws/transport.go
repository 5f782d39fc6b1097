package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"

	"github.com/garrettladley/rally/internal/notify"
	"github.com/garrettladley/rally/internal/xhttp"
)

const defaultReadLimit = 1 << 20

// Transport dials the delivery server over a websocket.
type Transport struct {
	httpClient *http.Client
	sessionID  string
	readLimit  int64
}

var _ notify.Transport = (*Transport)(nil)

type Option func(*Transport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.httpClient = c }
}

func WithReadLimit(n int64) Option {
	return func(t *Transport) { t.readLimit = n }
}

func NewTransport(sessionID string, opts ...Option) *Transport {
	t := &Transport{sessionID: sessionID, readLimit: defaultReadLimit}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Dial(ctx context.Context, url string) (notify.Conn, error) {
	header := http.Header{}
	xhttp.SetClientHeaders(header, t.sessionID)

	c, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: t.httpClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("handshake status %d: %w", resp.StatusCode, err)
		}
		return nil, &notify.CloseError{Reason: notify.CloseTransport, Err: err}
	}
	c.SetReadLimit(t.readLimit)
	return &conn{c: c}, nil
}

type conn struct {
	c *websocket.Conn
}

var _ notify.Conn = (*conn)(nil)

func (c *conn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.c.Read(ctx)
		if err != nil {
			return nil, classify(ctx, err)
		}
		if typ != websocket.MessageText {
			continue
		}
		return data, nil
	}
}

func (c *conn) Write(ctx context.Context, data []byte) error {
	if err := c.c.Write(ctx, websocket.MessageText, data); err != nil {
		return classify(ctx, err)
	}
	return nil
}

func (c *conn) Close() error {
	if err := c.c.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

// classify maps a websocket error onto the reason the client reacts to.
// A close frame from the peer is a server disconnect and a cancelled
// context is a client disconnect. Anything else, an expired write
// deadline included, is the network.
func classify(ctx context.Context, err error) error {
	if code := websocket.CloseStatus(err); code != -1 {
		return &notify.CloseError{Reason: notify.CloseServer, Code: int(code), Err: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &notify.CloseError{Reason: notify.CloseClient, Err: err}
	}
	return &notify.CloseError{Reason: notify.CloseTransport, Err: err}
}
