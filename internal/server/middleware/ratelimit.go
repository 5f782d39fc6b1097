package middleware

import (
	"net/http"

	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xhttp"
	"github.com/garrettladley/rally/internal/xslog"
)

// RateLimit applies IP-based rate limiting.
func RateLimit(limiter storage.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := xhttp.GetRequestIP(r)

			result, err := limiter.Allow(ctx, ip)
			if err != nil {
				xslog.FromContext(ctx).ErrorContext(ctx, "rate limit check failed",
					xslog.ErrorGroup(err),
					xslog.IP(ip),
				)
				xerrors.WriteError(ctx, w, xerrors.ServiceUnavailable(xerrors.WithMessage("rate limit check failed")))
				return
			}

			if !result.Allowed {
				xerrors.WriteError(ctx, w, xerrors.TooManyRequests(
					xerrors.WithRetryAfter(result.RetryAfter),
					xerrors.WithReason("ip_rate_limit"),
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
