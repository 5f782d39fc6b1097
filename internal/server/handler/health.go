package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/garrettladley/rally/internal/version"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xhttp"
)

const healthTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HandleHealth reports whether storage answers.
func HandleHealth(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := p.Ping(ctx); err != nil {
			xerrors.WriteError(r.Context(), w, xerrors.ServiceUnavailable(xerrors.WithMessage("storage unavailable"), xerrors.WithCause(err)))
			return
		}
		xhttp.WriteOK(w, healthResponse{Status: "ok", Version: version.Get()})
	}
}
