package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/garrettladley/rally/internal/notify"
)

// Config is what the rally CLI reads from the environment.
type Config struct {
	ServerURL string `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	// SocketURL overrides the socket endpoint derived from ServerURL.
	SocketURL string `env:"SOCKET_URL"`

	BufferSize int       `env:"BUFFER_SIZE" envDefault:"50"`
	Reconnect  Reconnect `envPrefix:"RECONNECT_"`
	Heartbeat  Heartbeat `envPrefix:"HEARTBEAT_"`

	AuthTimeout  time.Duration `env:"AUTH_TIMEOUT" envDefault:"10s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// CredentialStore is file or keyring.
	CredentialStore string `env:"CREDENTIAL_STORE" envDefault:"file"`

	// JWTSecret lets `rally token` mint development credentials.
	JWTSecret  string `env:"AUTH_JWT_SECRET"`
	PublishKey string `env:"PUBLISH_KEY"`
}

type Reconnect struct {
	Delay       time.Duration `env:"DELAY" envDefault:"5s"`
	Factor      float64       `env:"FACTOR" envDefault:"1"`
	MaxDelay    time.Duration `env:"MAX_DELAY"`
	MaxAttempts int           `env:"MAX_ATTEMPTS"`
}

type Heartbeat struct {
	Interval  time.Duration `env:"INTERVAL" envDefault:"30s"`
	MissLimit int           `env:"MISS_LIMIT" envDefault:"2"`
}

func Read() (Config, error) {
	return env.ParseAs[Config]()
}

// WebSocketURL is SocketURL, or ServerURL with its scheme switched to
// ws/wss and the /ws path appended.
func (c Config) WebSocketURL() string {
	if c.SocketURL != "" {
		return c.SocketURL
	}
	base := strings.TrimRight(c.ServerURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (c Config) Notify() notify.Config {
	return notify.Config{
		URL:        c.WebSocketURL(),
		BufferSize: c.BufferSize,
		Backoff: notify.Backoff{
			Delay:       c.Reconnect.Delay,
			MaxDelay:    c.Reconnect.MaxDelay,
			Factor:      c.Reconnect.Factor,
			MaxAttempts: c.Reconnect.MaxAttempts,
		},
		HeartbeatInterval:  c.Heartbeat.Interval,
		HeartbeatMissLimit: c.Heartbeat.MissLimit,
		AuthTimeout:        c.AuthTimeout,
		WriteTimeout:       c.WriteTimeout,
	}
}
