package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xhttp"
	"github.com/garrettladley/rally/internal/xslog"
)

// PublishKey admits only callers presenting the shared publish key. An
// empty key refuses every request.
func PublishKey(key string) func(http.Handler) http.Handler {
	want := hashSecret(key)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			presented := r.Header.Get(xhttp.XPublishKey)
			if key == "" || presented == "" {
				xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing publish key")))
				return
			}
			got := hashSecret(presented)
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				xslog.FromContext(ctx).WarnContext(ctx, "publish key rejected",
					xslog.RequestPath(r),
					xslog.RequestIP(r))
				xerrors.WriteError(ctx, w, xerrors.Forbidden(xerrors.WithMessage("invalid publish key")))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// hashSecret fixes the compared length so timing does not leak it.
func hashSecret(s string) [sha256.Size]byte {
	return sha256.Sum256([]byte(s))
}
