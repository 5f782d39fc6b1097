package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xhttp"
	"github.com/garrettladley/rally/internal/xslog"
)

func TestChainOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	middleware := []func(http.Handler) http.Handler{mark("a"), mark("b"), mark("c")}

	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), middleware...)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"a", "b", "c", "handler", "a", "b", "c", "handler"}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestIDAndLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var gotID string
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = xcontext.GetRequestID(r.Context())
		xslog.FromContext(r.Context()).Info("inside")
	}),
		RequestID(WithIDFunc(func(*http.Request) string { return "req-1" })),
		ClientSessionID,
		Logger(base),
	)

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/api/notifications", nil)
	req.Header.Set(xhttp.XClientSession, "sess-9")
	req.Header.Set(version.Header, "v1.0.0")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if gotID != "req-1" {
		t.Errorf("request id = %q, want req-1", gotID)
	}
	if got := rec.Header().Get(xhttp.XRequestID); got != "req-1" {
		t.Errorf("%s = %q, want req-1", xhttp.XRequestID, got)
	}
	for _, want := range []string{`"request_id":"req-1"`, `"session_id":"sess-9"`, `"client_version":"v1.0.0"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log line %q missing %s", buf.String(), want)
		}
	}
}

func TestRecovery(t *testing.T) {
	t.Parallel()

	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	ctx := xslog.WithLogger(t.Context(), slog.New(slog.DiscardHandler))
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error":"internal_error"`) {
		t.Errorf("body = %q, want internal_error", rec.Body.String())
	}
}

func TestShutdownContext(t *testing.T) {
	t.Parallel()

	draining, drain := context.WithCancel(t.Context())
	var flagged []bool
	h := ShutdownContext(draining)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		flagged = append(flagged, xcontext.IsShutdownInProgress(r.Context()))
	}))

	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/ws", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	drain()
	h.ServeHTTP(httptest.NewRecorder(), req)

	if diff := cmp.Diff([]bool{false, true}, flagged); diff != "" {
		t.Errorf("shutdown flags mismatch (-want +got):\n%s", diff)
	}
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequestWithContext(t.Context(), http.MethodGet, "/", nil))

	want := map[string]string{
		xhttp.XContentTypeOpts: "nosniff",
		xhttp.XFrameOpts:       "DENY",
		xhttp.CacheControl:     "no-store",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := xslog.WithLogger(t.Context(), slog.New(slog.NewJSONHandler(&buf, nil)))

	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/health", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"status":418`) {
		t.Errorf("log line %q missing status 418", buf.String())
	}
	if !strings.Contains(buf.String(), `"msg":"http request"`) {
		t.Errorf("log line %q missing message", buf.String())
	}
}
