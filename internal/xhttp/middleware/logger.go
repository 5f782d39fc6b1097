package middleware

import (
	"log/slog"
	"net/http"

	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xslog"
)

// Logger injects an enriched logger into request context.
// Must run AFTER RequestID and ClientSessionID.
func Logger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attrs := make([]any, 0, 3)
			if id, ok := xcontext.GetRequestID(r.Context()); ok {
				attrs = append(attrs, xslog.RequestID(id))
			}
			if id, ok := xcontext.GetSessionID(r.Context()); ok {
				attrs = append(attrs, xslog.SessionID(id))
			}
			if v := r.Header.Get(version.Header); v != "" {
				attrs = append(attrs, xslog.ClientVersion(v))
			}
			ctx := xslog.WithLogger(r.Context(), base.With(attrs...))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
