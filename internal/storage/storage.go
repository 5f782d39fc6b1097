package storage

import (
	"context"
	"errors"
	"time"

	"github.com/garrettladley/rally/internal/protocol"
)

var ErrClosed = errors.New("storage closed")

// DefaultHistoryLimit is the page size when a caller asks for none.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// History is the durable record of every notification a user was sent,
// with its server-side read state.
type History interface {
	// Insert stores n for userID. It reports false, without error, when a
	// notification with the same id already exists.
	Insert(ctx context.Context, userID string, n protocol.Notification) (bool, error)

	// List returns up to limit notifications, newest first.
	List(ctx context.Context, userID string, limit int) ([]protocol.Notification, error)

	UnreadCount(ctx context.Context, userID string) (int, error)

	// MarkRead flips the given ids for userID and returns how many were
	// unread. Ids belonging to other users or already read are skipped.
	MarkRead(ctx context.Context, userID string, ids ...string) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Broker fans encoded frames out to every live channel of a user.
type Broker interface {
	Publish(ctx context.Context, userID string, frame []byte) error

	// Subscribe returns a channel of frames for userID. The returned func
	// unsubscribes and is safe to call more than once; the subscription
	// also ends when ctx is done.
	Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error)

	Ping(ctx context.Context) error
	Close() error
}

type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateLimitResult, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
