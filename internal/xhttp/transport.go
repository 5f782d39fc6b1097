package xhttp

import (
	"fmt"
	"net/http"

	"github.com/garrettladley/rally/internal/version"
)

type rallyTransport struct {
	base      http.RoundTripper
	sessionID string
}

var _ http.RoundTripper = (*rallyTransport)(nil)

func (t *rallyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	SetClientHeaders(req.Header, t.sessionID)
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform round trip: %w", err)
	}
	return resp, nil
}

// SetClientHeaders stamps the headers every rally client sends, on REST
// calls and on the websocket handshake alike.
func SetClientHeaders(h http.Header, sessionID string) {
	h.Set("User-Agent", "rally/"+version.Get())
	h.Set(version.Header, version.Get())
	if sessionID != "" {
		h.Set(XClientSession, sessionID)
	}
}

// NewTransport returns an http.RoundTripper with standard rally headers.
func NewTransport(sessionID string) http.RoundTripper {
	return &rallyTransport{base: http.DefaultTransport, sessionID: sessionID}
}
