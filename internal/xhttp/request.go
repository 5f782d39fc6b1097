package xhttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	go_json "github.com/goccy/go-json"
)

const maxBodyBytes = 1 << 20

var ErrEmptyBody = errors.New("request body is empty")

func GetRequestIP(r *http.Request) string {
	if xff := r.Header.Get(XForwardedFor); xff != "" {
		if ip, _, err := net.SplitHostPort(xff); err == nil {
			return ip
		}
		return xff
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

// DecodeJSON reads at most 1MiB of JSON from the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return ErrEmptyBody
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := go_json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode request body: %w", err)
	}
	return nil
}

// QueryInt parses the query parameter key, returning fallback when it is
// absent.
func QueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", key, err)
	}
	return n, nil
}
