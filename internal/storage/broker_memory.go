package storage

import (
	"context"
	"sync"
)

var _ Broker = (*MemoryBroker)(nil)

// subscriberBuffer bounds how far a slow channel may lag before frames
// are dropped for it.
const subscriberBuffer = 64

type subscriber struct {
	ch   chan []byte
	once sync.Once
}

type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[*subscriber]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, userID string, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs[userID] {
		select {
		case sub.ch <- frame:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, nil, ErrClosed
	}
	sub := &subscriber{ch: make(chan []byte, subscriberBuffer)}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*subscriber]struct{})
	}
	b.subs[userID][sub] = struct{}{}
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { b.remove(userID, sub) })
	unsubscribe := func() {
		stop()
		b.remove(userID, sub)
	}
	return sub.ch, unsubscribe, nil
}

func (b *MemoryBroker) remove(userID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, userID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}

func (b *MemoryBroker) Ping(context.Context) error { return nil }

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for userID, subs := range b.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, userID)
	}
	return nil
}
