package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/garrettladley/rally/internal/server/handler"
	servermw "github.com/garrettladley/rally/internal/server/middleware"
	"github.com/garrettladley/rally/internal/service/notification"
	"github.com/garrettladley/rally/internal/service/token"
	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/xhttp/middleware"
)

type Deps struct {
	Logger        *slog.Logger
	Tokens        token.Service
	Notifications notification.Service
	Health        handler.Pinger
	RateLimiter   storage.RateLimiter
	PublishKey    string
	Socket        handler.SocketConfig

	// Draining is cancelled when shutdown begins.
	Draining context.Context
}

func NewRouter(d Deps) http.Handler {
	notificationsHandler := handler.NewNotifications(d.Notifications)
	socketHandler := handler.NewSocket(d.Tokens, d.Notifications, d.Socket)

	rateLimit := servermw.RateLimit(d.RateLimiter)
	bearer := servermw.BearerAuth(d.Tokens)
	publishKey := servermw.PublishKey(d.PublishKey)

	mux := http.NewServeMux()

	mux.Handle("GET /health", middleware.Chain(handler.HandleHealth(d.Health), rateLimit))

	mux.Handle("GET /ws", middleware.Chain(http.HandlerFunc(socketHandler.HandleSocket),
		middleware.VersionCheck,
		rateLimit,
	))

	mux.Handle("GET /api/notifications", middleware.Chain(http.HandlerFunc(notificationsHandler.HandleHistory),
		middleware.VersionCheck,
		rateLimit,
		bearer,
		middleware.Gzip,
	))
	mux.Handle("POST /api/notifications/read", middleware.Chain(http.HandlerFunc(notificationsHandler.HandleMarkRead),
		middleware.VersionCheck,
		rateLimit,
		bearer,
	))

	// service-to-service; never exposed to end users
	mux.Handle("POST /internal/notifications", middleware.Chain(http.HandlerFunc(notificationsHandler.HandlePublish),
		publishKey,
	))
	mux.Handle("POST /internal/signals/invitations", middleware.Chain(http.HandlerFunc(notificationsHandler.HandleSignalInvitations),
		publishKey,
	))

	draining := d.Draining
	if draining == nil {
		draining = context.Background()
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return middleware.Chain(mux,
		middleware.RequestID(),
		middleware.ClientSessionID,
		middleware.Logger(logger),
		middleware.Logging,
		middleware.Recovery,
		middleware.ShutdownContext(draining),
		middleware.SecurityHeaders,
	)
}
