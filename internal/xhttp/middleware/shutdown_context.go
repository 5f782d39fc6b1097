package middleware

import (
	"context"
	"net/http"

	"github.com/garrettladley/rally/internal/xcontext"
)

// ShutdownContext marks requests that arrive after the server began to
// drain. draining is the context the shutdown coordinator cancels.
func ShutdownContext(draining context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if draining.Err() != nil {
				r = r.WithContext(xcontext.SetShutdownInProgress(r.Context(), true))
			}
			next.ServeHTTP(w, r)
		})
	}
}
