package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/rally/internal/notify"
)

func TestWebSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "http", cfg: Config{ServerURL: "http://localhost:8080"}, want: "ws://localhost:8080/ws"},
		{name: "https trailing slash", cfg: Config{ServerURL: "https://rally.example/"}, want: "wss://rally.example/ws"},
		{name: "override", cfg: Config{ServerURL: "https://rally.example", SocketURL: "wss://push.example/live"}, want: "wss://push.example/live"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.cfg.WebSocketURL(); got != tt.want {
				t.Errorf("WebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestReadDefaults(t *testing.T) {
	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := notify.Config{
		URL:        "ws://localhost:8080/ws",
		BufferSize: 50,
		Backoff: notify.Backoff{
			Delay:  5 * time.Second,
			Factor: 1,
		},
		HeartbeatInterval:  30 * time.Second,
		HeartbeatMissLimit: 2,
		AuthTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
	}
	if diff := cmp.Diff(want, cfg.Notify()); diff != "" {
		t.Errorf("Notify() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadReconnectOverrides(t *testing.T) {
	t.Setenv("RECONNECT_DELAY", "1s")
	t.Setenv("RECONNECT_FACTOR", "2")
	t.Setenv("RECONNECT_MAX_DELAY", "20s")
	t.Setenv("RECONNECT_MAX_ATTEMPTS", "4")
	t.Setenv("HEARTBEAT_MISS_LIMIT", "0")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	want := notify.Backoff{Delay: time.Second, Factor: 2, MaxDelay: 20 * time.Second, MaxAttempts: 4}
	if diff := cmp.Diff(want, cfg.Notify().Backoff); diff != "" {
		t.Errorf("Backoff mismatch (-want +got):\n%s", diff)
	}
	if cfg.Heartbeat.MissLimit != 0 {
		t.Errorf("MissLimit = %d, want 0", cfg.Heartbeat.MissLimit)
	}
}
