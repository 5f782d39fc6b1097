package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	go_json "github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/xhttp"
)

const defaultTimeout = 30 * time.Second

// Error is a non-2xx reply from the server.
type Error struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

type Option func(*options)

type options struct {
	httpClient *http.Client
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

func newOptions(sessionID string, opts []Option) options {
	o := options{httpClient: xhttp.NewHTTPClient(sessionID, xhttp.WithTimeout(defaultTimeout))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client calls the user-facing REST endpoints with the session's bearer
// token.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

func New(baseURL string, tokens oauth2.TokenSource, sessionID string, opts ...Option) *Client {
	o := newOptions(sessionID, opts)
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: o.httpClient,
		tokens:     tokens,
	}
}

// History fetches the newest notifications and the unread total.
func (c *Client) History(ctx context.Context, limit int) (*protocol.History, error) {
	u, err := url.Parse(c.baseURL + "/api/notifications")
	if err != nil {
		return nil, fmt.Errorf("parsing URL: %w", err)
	}
	if limit > 0 {
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
	}

	var history protocol.History
	if err := c.do(ctx, http.MethodGet, u.String(), nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

func (c *Client) MarkRead(ctx context.Context, ids ...string) (int, error) {
	var resp protocol.MarkReadResponse
	err := c.do(ctx, http.MethodPost, c.baseURL+"/api/notifications/read", protocol.MarkReadRequest{IDs: ids}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (c *Client) do(ctx context.Context, method, target string, body, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}
	return send(ctx, c.httpClient, method, target, body, out, func(h http.Header) {
		h.Set(xhttp.Authorization, token.Type()+" "+token.AccessToken)
	})
}

// Publisher calls the internal endpoints other services use to hand
// notifications to the delivery server.
type Publisher struct {
	baseURL    string
	httpClient *http.Client
	key        string
}

func NewPublisher(baseURL, key, sessionID string, opts ...Option) *Publisher {
	o := newOptions(sessionID, opts)
	return &Publisher{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: o.httpClient,
		key:        key,
	}
}

func (p *Publisher) Publish(ctx context.Context, userID string, n protocol.Notification) (protocol.Notification, error) {
	var stored protocol.Notification
	err := p.do(ctx, "/internal/notifications", protocol.PublishRequest{UserID: userID, Notification: n}, &stored)
	return stored, err
}

func (p *Publisher) SignalInvitations(ctx context.Context, userID string) error {
	return p.do(ctx, "/internal/signals/invitations", protocol.SignalRequest{UserID: userID}, nil)
}

func (p *Publisher) do(ctx context.Context, path string, body, out any) error {
	return send(ctx, p.httpClient, http.MethodPost, p.baseURL+path, body, out, func(h http.Header) {
		h.Set(xhttp.XPublishKey, p.key)
	})
}

func send(ctx context.Context, hc *http.Client, method, target string, body, out any, auth func(http.Header)) error {
	var reader io.Reader
	if body != nil {
		data, err := go_json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		xhttp.SetRequestHeaderContentTypeApplicationJSON(req)
	}
	auth(req.Header)

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		_ = go_json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := go_json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
