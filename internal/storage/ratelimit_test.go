package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestMemoryRateLimiter(t *testing.T) {
	t.Parallel()

	l := NewMemoryRateLimiter(1, 2)
	ctx := t.Context()

	for i := range 2 {
		res, err := l.Allow(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}

	res, err := l.Allow(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("request past burst allowed")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Second {
		t.Errorf("RetryAfter = %v, want (0, 1s]", res.RetryAfter)
	}

	res, err = l.Allow(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Error("separate key shares a bucket")
	}
}

func TestRedisRateLimiter(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRateLimiter(client, 3, time.Minute)
	ctx := t.Context()

	for i := range 3 {
		res, err := l.Allow(ctx, "k")
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied within limit", i)
		}
	}

	res, err := l.Allow(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed {
		t.Error("request past limit allowed")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want (0, 1m]", res.RetryAfter)
	}

	mr.FastForward(time.Minute + time.Second)

	res, err = l.Allow(ctx, "k")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Error("request denied after window expired")
	}
}
