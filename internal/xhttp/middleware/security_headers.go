package middleware

import (
	"net/http"

	"github.com/garrettladley/rally/internal/xhttp"
)

// SecurityHeaders sets the browser hardening headers. Notification
// payloads are per user, so nothing may be cached by intermediaries.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set(xhttp.XContentTypeOpts, "nosniff")
		h.Set(xhttp.XFrameOpts, "DENY")
		h.Set(xhttp.XXSSProtection, "1; mode=block")
		h.Set(xhttp.ReferrerPolicy, "strict-origin-when-cross-origin")
		h.Set(xhttp.CacheControl, "no-store")
		next.ServeHTTP(w, r)
	})
}
