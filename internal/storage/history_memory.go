package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/garrettladley/rally/internal/protocol"
)

var _ History = (*MemoryHistory)(nil)

type memoryRecord struct {
	userID string
	n      protocol.Notification
}

type MemoryHistory struct {
	mu     sync.RWMutex
	byID   map[string]*memoryRecord
	byUser map[string][]*memoryRecord
	closed bool
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{
		byID:   make(map[string]*memoryRecord),
		byUser: make(map[string][]*memoryRecord),
	}
}

func (m *MemoryHistory) Insert(_ context.Context, userID string, n protocol.Notification) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}
	if _, ok := m.byID[n.ID]; ok {
		return false, nil
	}

	rec := &memoryRecord{userID: userID, n: n}
	m.byID[n.ID] = rec

	records := m.byUser[userID]
	i, _ := slices.BinarySearchFunc(records, n, func(r *memoryRecord, n protocol.Notification) int {
		return n.Timestamp.Compare(r.n.Timestamp)
	})
	m.byUser[userID] = slices.Insert(records, i, rec)
	return true, nil
}

func (m *MemoryHistory) List(_ context.Context, userID string, limit int) ([]protocol.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	records := m.byUser[userID]
	records = records[:min(len(records), clampLimit(limit))]
	out := make([]protocol.Notification, len(records))
	for i, r := range records {
		out[i] = r.n
	}
	return out, nil
}

func (m *MemoryHistory) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	count := 0
	for _, r := range m.byUser[userID] {
		if !r.n.Read {
			count++
		}
	}
	return count, nil
}

func (m *MemoryHistory) MarkRead(_ context.Context, userID string, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	flipped := 0
	for _, id := range ids {
		r, ok := m.byID[id]
		if !ok || r.userID != userID || r.n.Read {
			continue
		}
		r.n.Read = true
		flipped++
	}
	return flipped, nil
}

func (m *MemoryHistory) Ping(context.Context) error { return nil }

func (m *MemoryHistory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func stamp(n protocol.Notification) protocol.Notification {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	n.Timestamp = n.Timestamp.UTC().Truncate(time.Millisecond)
	return n
}
