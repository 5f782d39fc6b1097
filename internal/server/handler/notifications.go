package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/service/notification"
	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/xcontext"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xhttp"
	"github.com/garrettladley/rally/internal/xslog"
)

type Notifications struct {
	service notification.Service
}

func NewNotifications(service notification.Service) *Notifications {
	return &Notifications{service: service}
}

// HandleHistory handles GET /api/notifications.
// Query params: limit (1-200, default 50)
func (h *Notifications) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := xcontext.GetUserID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing user context")))
		return
	}

	limit, err := xhttp.QueryInt(r, "limit", storage.DefaultHistoryLimit)
	if err != nil || limit <= 0 || limit > storage.MaxHistoryLimit {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid limit parameter (must be 1-200)")))
		return
	}

	history, err := h.service.History(ctx, userID, limit)
	if err != nil {
		xerrors.WriteError(ctx, w, xerrors.Internal(xerrors.WithMessage("failed to fetch notifications"), xerrors.WithCause(err)))
		return
	}

	xhttp.WriteOK(w, history)
}

// HandleMarkRead handles POST /api/notifications/read.
func (h *Notifications) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := xcontext.GetUserID(ctx)
	if !ok {
		xerrors.WriteError(ctx, w, xerrors.Unauthorized(xerrors.WithMessage("missing user context")))
		return
	}

	var req protocol.MarkReadRequest
	if err := xhttp.DecodeJSON(w, r, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid request body"), xerrors.WithCause(err)))
		return
	}

	updated, err := h.service.MarkRead(ctx, userID, req.IDs)
	if err != nil {
		writeServiceError(ctx, w, err, "failed to mark notifications read")
		return
	}

	xslog.FromContext(ctx).DebugContext(ctx, "notifications marked read", xslog.Count(updated))
	xhttp.WriteOK(w, protocol.MarkReadResponse{Updated: updated})
}

// HandlePublish handles POST /internal/notifications.
func (h *Notifications) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req protocol.PublishRequest
	if err := xhttp.DecodeJSON(w, r, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid request body"), xerrors.WithCause(err)))
		return
	}

	stored, err := h.service.Publish(ctx, req.UserID, req.Notification)
	if err != nil {
		writeServiceError(ctx, w, err, "failed to publish notification")
		return
	}

	xslog.FromContext(ctx).InfoContext(ctx, "notification published",
		xslog.UserID(req.UserID),
		xslog.NotificationID(stored.ID),
		xslog.Kind(string(stored.Type)),
	)
	xhttp.WriteJSON(w, http.StatusAccepted, stored)
}

// HandleSignalInvitations handles POST /internal/signals/invitations.
func (h *Notifications) HandleSignalInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req protocol.SignalRequest
	if err := xhttp.DecodeJSON(w, r, &req); err != nil {
		xerrors.WriteError(ctx, w, xerrors.BadRequest(xerrors.WithMessage("invalid request body"), xerrors.WithCause(err)))
		return
	}

	if err := h.service.SignalInvitations(ctx, req.UserID); err != nil {
		writeServiceError(ctx, w, err, "failed to signal invitations")
		return
	}

	xhttp.WriteNoContent(w)
}

func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, msg string) {
	switch {
	case xerrors.As(err) != nil:
	case errors.Is(err, storage.ErrClosed):
		err = xerrors.ServiceUnavailable(xerrors.WithMessage(msg), xerrors.WithCause(err))
	default:
		err = xerrors.Internal(xerrors.WithMessage(msg), xerrors.WithCause(err))
	}
	xerrors.WriteError(ctx, w, err)
}
