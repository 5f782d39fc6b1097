package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func brokers(t *testing.T) map[string]func(t *testing.T) Broker {
	t.Helper()
	return map[string]func(t *testing.T) Broker{
		"memory": func(t *testing.T) Broker {
			b := NewMemoryBroker()
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
		"redis": func(t *testing.T) Broker {
			mr := miniredis.RunT(t)
			b := NewRedisBroker(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case frame, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed")
		}
		return string(frame)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

func closed(t *testing.T, ch <-chan []byte) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription still open")
		}
	}
}

func TestBrokerFanOut(t *testing.T) {
	t.Parallel()

	for name, open := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := open(t)
			ctx := t.Context()

			first, unsubFirst, err := b.Subscribe(ctx, "u-1")
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer unsubFirst()
			second, unsubSecond, err := b.Subscribe(ctx, "u-1")
			if err != nil {
				t.Fatal(err)
			}
			defer unsubSecond()
			other, unsubOther, err := b.Subscribe(ctx, "u-2")
			if err != nil {
				t.Fatal(err)
			}
			defer unsubOther()

			if err := b.Publish(ctx, "u-1", []byte(`{"type":"ping"}`)); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			if got := receive(t, first); got != `{"type":"ping"}` {
				t.Errorf("first got %q", got)
			}
			if got := receive(t, second); got != `{"type":"ping"}` {
				t.Errorf("second got %q", got)
			}

			if err := b.Publish(ctx, "u-2", []byte("for u-2")); err != nil {
				t.Fatal(err)
			}
			if got := receive(t, other); got != "for u-2" {
				t.Errorf("other got %q", got)
			}
			select {
			case frame := <-first:
				t.Errorf("u-1 received u-2 frame %q", frame)
			default:
			}
		})
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	t.Parallel()

	for name, open := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			b := open(t)

			ch, unsubscribe, err := b.Subscribe(t.Context(), "u-1")
			if err != nil {
				t.Fatal(err)
			}
			unsubscribe()
			unsubscribe()
			closed(t, ch)

			ctx, cancel := context.WithCancel(t.Context())
			ch, unsubscribe, err = b.Subscribe(ctx, "u-1")
			if err != nil {
				t.Fatal(err)
			}
			defer unsubscribe()
			cancel()
			closed(t, ch)
		})
	}
}

func TestMemoryBrokerDropsForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := NewMemoryBroker()
	ch, unsubscribe, err := b.Subscribe(t.Context(), "u-1")
	if err != nil {
		t.Fatal(err)
	}
	defer unsubscribe()

	for range subscriberBuffer + 10 {
		if err := b.Publish(t.Context(), "u-1", []byte("x")); err != nil {
			t.Fatalf("Publish() blocked or failed: %v", err)
		}
	}
	if got := len(ch); got != subscriberBuffer {
		t.Errorf("buffered = %d, want %d", got, subscriberBuffer)
	}
}

func TestMemoryBrokerClose(t *testing.T) {
	t.Parallel()

	b := NewMemoryBroker()
	ch, _, err := b.Subscribe(t.Context(), "u-1")
	if err != nil {
		t.Fatal(err)
	}
	_ = b.Close()
	closed(t, ch)

	if err := b.Publish(t.Context(), "u-1", []byte("x")); err != ErrClosed {
		t.Errorf("Publish() error = %v, want ErrClosed", err)
	}
	if _, _, err := b.Subscribe(t.Context(), "u-1"); err != ErrClosed {
		t.Errorf("Subscribe() error = %v, want ErrClosed", err)
	}
}
