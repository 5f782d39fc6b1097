package middleware

import (
	"errors"
	"net/http"

	"github.com/garrettladley/rally/internal/service/token"
	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xhttp"
	"github.com/garrettladley/rally/internal/xslog"
)

// BearerAuth validates the Authorization header and sets the verified user
// ID in context.
func BearerAuth(tokenService token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := xslog.FromContext(ctx)

			raw, _ := xhttp.BearerToken(r)
			userID, err := tokenService.Validate(ctx, raw)
			if err != nil {
				logger.WarnContext(ctx, "token validation failed",
					xslog.RequestPath(r),
					xslog.ErrorGroup(err))

				switch {
				case errors.Is(err, token.ErrMissingToken):
					xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing Authorization header")))
				case errors.Is(err, token.ErrInvalidToken):
					xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("invalid or expired token")))
				default:
					xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("token validation failed"), xerrors.WithCause(err)))
				}
				return
			}

			ctx, _ = xslog.With(xcontext.SetUserID(ctx, userID), xslog.UserID(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
