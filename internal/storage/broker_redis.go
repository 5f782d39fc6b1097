package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Broker = (*RedisBroker)(nil)

const liveChannelPrefix = "notifications:live:"

// RedisBroker fans frames out through Redis pub/sub so every server
// instance sees every frame.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func liveChannel(userID string) string {
	return liveChannelPrefix + userID
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, frame []byte) error {
	if err := b.client.Publish(ctx, liveChannel(userID), frame).Err(); err != nil {
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	pubsub := b.client.Subscribe(ctx, liveChannel(userID))

	// wait for the subscription to be confirmed before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	msgs := pubsub.Channel()
	frames := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(frames)
		for msg := range msgs {
			select {
			case frames <- []byte(msg.Payload):
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	unsubscribe := func() {
		stop()
		_ = pubsub.Close()
	}
	return frames, unsubscribe, nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
