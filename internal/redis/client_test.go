package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNew(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := New(t.Context(), Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if err := client.Set(t.Context(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got, _ := mr.Get("k"); got != "v" {
		t.Errorf("stored value = %q, want v", got)
	}
}

func TestNewErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{name: "empty", url: ""},
		{name: "bad scheme", url: "http://localhost:6379"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(t.Context(), Config{URL: tt.url}); err == nil {
				t.Errorf("New(%q) error = nil", tt.url)
			}
		})
	}
}
