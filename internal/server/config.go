package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	appenv "github.com/garrettladley/rally/internal/env"
	"github.com/garrettladley/rally/internal/server/handler"
	"github.com/garrettladley/rally/internal/storage"
)

type Config struct {
	Port      string             `env:"PORT" envDefault:"8080"`
	Env       appenv.Environment `env:"ENV" envDefault:"development"`
	Auth      Auth               `envPrefix:"AUTH_"`
	Storage   Storage            `envPrefix:"STORAGE_"`
	Socket    Socket             `envPrefix:"SOCKET_"`
	RateLimit RateLimit          `envPrefix:"RATE_"`

	// PublishKey guards the internal publish endpoints. Empty disables them.
	PublishKey string `env:"PUBLISH_KEY"`

	ShutdownGracePeriod time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"2s"`
}

type Auth struct {
	JWTSecret string        `env:"JWT_SECRET,required,notEmpty"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

type Storage struct {
	Driver      storage.Driver `env:"DRIVER" envDefault:"memory"`
	DatabaseURL string         `env:"DATABASE_URL"`
	SQLitePath  string         `env:"SQLITE_PATH" envDefault:"rally.db"`
	RedisURL    string         `env:"REDIS_URL"`
}

type Socket struct {
	// InboundRate and InboundBurst throttle the frames one client may send.
	InboundRate    float64       `env:"INBOUND_RATE" envDefault:"20"`
	InboundBurst   int           `env:"INBOUND_BURST" envDefault:"40"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ReadLimit      int64         `env:"READ_LIMIT" envDefault:"65536"`
	OriginPatterns []string      `env:"ORIGIN_PATTERNS" envSeparator:","`
}

// RateLimit bounds REST requests per client ip.
type RateLimit struct {
	Limit  int           `env:"LIMIT" envDefault:"60"`
	Window time.Duration `env:"WINDOW" envDefault:"1m"`
}

func ReadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if cfg.Storage.Driver == storage.DriverPostgres && cfg.Storage.DatabaseURL == "" {
		return Config{}, fmt.Errorf("STORAGE_DATABASE_URL is required for the postgres driver")
	}
	return cfg, nil
}

func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		Driver:      c.Storage.Driver,
		DatabaseURL: c.Storage.DatabaseURL,
		SQLitePath:  c.Storage.SQLitePath,
		RedisURL:    c.Storage.RedisURL,
		RateLimit:   c.RateLimit.Limit,
		RateWindow:  c.RateLimit.Window,
	}
}

func (c Config) SocketConfig() handler.SocketConfig {
	return handler.SocketConfig{
		AuthTimeout:    c.Auth.Timeout,
		InboundRate:    c.Socket.InboundRate,
		InboundBurst:   c.Socket.InboundBurst,
		WriteTimeout:   c.Socket.WriteTimeout,
		ReadLimit:      c.Socket.ReadLimit,
		OriginPatterns: c.Socket.OriginPatterns,
	}
}
