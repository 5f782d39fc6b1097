package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/garrettladley/rally/internal/server"
	"github.com/garrettladley/rally/internal/service/notification"
	"github.com/garrettladley/rally/internal/service/token"
	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/xslog"
)

const (
	keyPort        = "port"
	keyGracePeriod = "grace_period"

	shutdownTimeout = 30 * time.Second
)

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout, xslog.FormatJSON)
	slog.SetDefault(logger)

	ctx := context.Background()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := server.ReadConfig()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	backends, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := backends.Notifications.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close storage", xslog.Error(err))
		}
	}()

	if cfg.PublishKey == "" {
		logger.WarnContext(ctx, "PUBLISH_KEY is empty, internal publish endpoints are disabled")
	}

	shutdownCoordinator := server.NewShutdownCoordinator(cfg.ShutdownGracePeriod)

	router := server.NewRouter(server.Deps{
		Logger:        logger,
		Tokens:        token.NewValidator([]byte(cfg.Auth.JWTSecret)),
		Notifications: notification.NewStore(backends.Notifications),
		Health:        backends.Notifications,
		RateLimiter:   backends.RateLimiter,
		PublishKey:    cfg.PublishKey,
		Socket:        cfg.SocketConfig(),
		Draining:      shutdownCoordinator.BaseContext(),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0, // sockets are long lived; writes carry their own deadline
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return shutdownCoordinator.BaseContext()
		},
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.InfoContext(ctx, "starting server",
			xslog.Version(),
			slog.String(keyPort, cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-done:
		logger.InfoContext(ctx, "shutdown signal received, initiating graceful shutdown")
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	// sockets see going-away first, then the listener stops
	shutdownCoordinator.InitiateShutdown(shutdownCtx)
	logger.InfoContext(ctx, "socket grace period complete, shutting down server",
		slog.Duration(keyGracePeriod, cfg.ShutdownGracePeriod))

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.InfoContext(ctx, "server stopped")
	return nil
}

func initStorage(ctx context.Context, cfg server.Config, logger *slog.Logger) (*storage.Backends, error) {
	storageCfg := cfg.StorageConfig()

	logger.InfoContext(ctx, "initializing storage",
		xslog.Driver(string(storageCfg.Driver)),
		slog.Bool("redis", storageCfg.RedisURL != ""))

	return storage.Open(ctx, storageCfg)
}
