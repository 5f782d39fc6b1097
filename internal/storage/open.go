package storage

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/garrettladley/rally/internal/redis"
)

type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Config struct {
	Driver      Driver
	DatabaseURL string
	SQLitePath  string

	// RedisURL switches the broker and the rate limiter to Redis. Empty
	// keeps both in process.
	RedisURL string

	RateLimit  int
	RateWindow time.Duration
}

// Backends is everything a server needs from storage.
type Backends struct {
	Notifications *NotificationStore
	RateLimiter   RateLimiter
}

func Open(ctx context.Context, cfg Config) (*Backends, error) {
	history, err := openHistory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		broker  Broker
		limiter RateLimiter
	)
	if cfg.RedisURL != "" {
		var client *goredis.Client
		client, err = redis.New(ctx, redis.Config{URL: cfg.RedisURL})
		if err != nil {
			_ = history.Close()
			return nil, err
		}
		broker = NewRedisBroker(client)
		limiter = NewRedisRateLimiter(client, cfg.RateLimit, cfg.RateWindow)
	} else {
		broker = NewMemoryBroker()
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		limiter = NewMemoryRateLimiter(float64(cfg.RateLimit)/window.Seconds(), cfg.RateLimit)
	}

	return &Backends{
		Notifications: NewNotificationStore(history, broker),
		RateLimiter:   limiter,
	}, nil
}

func openHistory(ctx context.Context, cfg Config) (History, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryHistory(), nil
	case DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteHistory(ctx, path)
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires a database url")
		}
		return NewPostgresHistory(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
