package middleware

import (
	"net/http"

	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xhttp"
)

// ClientSessionID copies the client's session header into the context.
// Requests without one are left untouched.
func ClientSessionID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sessionID := xhttp.GetRequestHeaderSessionID(r); sessionID != "" {
			r = r.WithContext(xcontext.SetSessionID(r.Context(), sessionID))
		}
		next.ServeHTTP(w, r)
	})
}
