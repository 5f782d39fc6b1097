package server

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	appenv "github.com/garrettladley/rally/internal/env"
	"github.com/garrettladley/rally/internal/server/handler"
	"github.com/garrettladley/rally/internal/storage"
)

func TestReadConfigDefaults(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")

	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Env != appenv.Development {
		t.Errorf("Env = %q, want development", cfg.Env)
	}
	if cfg.Storage.Driver != storage.DriverMemory {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.ShutdownGracePeriod != 2*time.Second {
		t.Errorf("ShutdownGracePeriod = %v, want 2s", cfg.ShutdownGracePeriod)
	}

	want := handler.SocketConfig{
		AuthTimeout:  10 * time.Second,
		InboundRate:  20,
		InboundBurst: 40,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    65536,
	}
	if diff := cmp.Diff(want, cfg.SocketConfig()); diff != "" {
		t.Errorf("SocketConfig() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadConfigOverrides(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "secret")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("STORAGE_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_WINDOW", "10s")
	t.Setenv("SOCKET_ORIGIN_PATTERNS", "a.example,b.example")

	cfg, err := ReadConfig()
	if err != nil {
		t.Fatalf("ReadConfig() error = %v", err)
	}

	want := storage.Config{
		Driver:     storage.DriverSQLite,
		SQLitePath: "/tmp/x.db",
		RateLimit:  5,
		RateWindow: 10 * time.Second,
	}
	if diff := cmp.Diff(want, cfg.StorageConfig()); diff != "" {
		t.Errorf("StorageConfig() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.example", "b.example"}, cfg.Socket.OriginPatterns); diff != "" {
		t.Errorf("OriginPatterns mismatch (-want +got):\n%s", diff)
	}
}

func TestReadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{"AUTH_JWT_SECRET": ""}},
		{name: "postgres without url", env: map[string]string{"AUTH_JWT_SECRET": "s", "STORAGE_DRIVER": "postgres"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := ReadConfig(); err == nil {
				t.Error("ReadConfig() error = nil")
			}
		})
	}
}
