package middleware

import (
	"net/http"

	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xslog"
)

// VersionCheck turns away clients built against another major version of
// the wire protocol before they open a channel.
func VersionCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientVersion := r.Header.Get(version.Header)

		if verr := version.CheckCompatibility(clientVersion); verr != nil {
			xslog.FromContext(r.Context()).WarnContext(
				r.Context(),
				"client version incompatible",
				xslog.ClientVersion(verr.ClientVersion),
				xslog.Version(),
				xslog.RequestPath(r),
			)
			xerrors.WriteError(r.Context(), w, xerrors.UpgradeRequired(
				xerrors.WithMessage(verr.Error()),
			))
			return
		}

		next.ServeHTTP(w, r)
	})
}
