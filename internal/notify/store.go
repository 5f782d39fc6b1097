package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/garrettladley/rally/internal/protocol"
)

const DefaultBufferSize = 50

// Store is the bounded, newest-first cache of pushed notifications plus
// the unread counter. The counter tracks the whole stream: evicting an
// unread record does not decrement it.
type Store struct {
	mu      sync.Mutex
	limit   int
	records []protocol.Notification
	ids     map[string]struct{}
	unread  int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultBufferSize
	}
	return &Store{
		limit: limit,
		ids:   make(map[string]struct{}, limit),
	}
}

// Add prepends n unless a record with the same id is already buffered.
// It reports whether n was added.
func (s *Store) Add(n protocol.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[n.ID]; ok {
		return false
	}

	s.records = slices.Insert(s.records, 0, n)
	s.ids[n.ID] = struct{}{}
	if !n.Read {
		s.unread++
	}

	for len(s.records) > s.limit {
		oldest := s.records[len(s.records)-1]
		delete(s.ids, oldest.ID)
		s.records = s.records[:len(s.records)-1]
	}
	return true
}

// Seed merges a history page (newest first) into the buffer and takes
// the unread count from the server. Buffered records missing from the
// page survive, and unread ones newer than the whole page are added to
// the server's count since it could not have seen them.
func (s *Store) Seed(records []protocol.Notification, unread int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := make(map[string]struct{}, len(records))
	merged := make([]protocol.Notification, 0, len(s.records)+len(records))
	var newest time.Time
	for _, n := range records {
		if _, ok := page[n.ID]; ok {
			continue
		}
		page[n.ID] = struct{}{}
		if n.Timestamp.After(newest) {
			newest = n.Timestamp
		}
	}

	unread = max(unread, 0)
	for _, n := range s.records {
		if _, ok := page[n.ID]; ok {
			continue
		}
		if !n.Read && (len(page) == 0 || n.Timestamp.After(newest)) {
			unread++
		}
		merged = append(merged, n)
	}
	for _, n := range records {
		if _, ok := page[n.ID]; !ok {
			continue
		}
		delete(page, n.ID)
		merged = append(merged, n)
	}

	slices.SortStableFunc(merged, func(a, b protocol.Notification) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(merged) > s.limit {
		merged = merged[:s.limit]
	}

	s.records = merged
	s.ids = make(map[string]struct{}, s.limit)
	for _, n := range merged {
		s.ids[n.ID] = struct{}{}
	}
	s.unread = unread
}

// MarkRead flips the read flag of id. It reports whether an unread
// record was found; unknown ids leave the counter untouched.
func (s *Store) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID != id {
			continue
		}
		if s.records[i].Read {
			return false
		}
		s.records[i].Read = true
		s.decrement()
		return true
	}
	return false
}

// MarkAllRead flips every buffered unread record, zeroes the counter and
// returns the ids it flipped, newest first.
func (s *Store) MarkAllRead() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for i := range s.records {
		if s.records[i].Read {
			continue
		}
		s.records[i].Read = true
		ids = append(ids, s.records[i].ID)
	}
	s.unread = 0
	return ids
}

func (s *Store) decrement() {
	if s.unread > 0 {
		s.unread--
	}
}

func (s *Store) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Snapshot returns a copy of the buffer, newest first.
func (s *Store) Snapshot() []protocol.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

// Get returns the buffered record with the given id.
func (s *Store) Get(id string) (protocol.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.records {
		if n.ID == id {
			return n, true
		}
	}
	return protocol.Notification{}, false
}

// Filter selects a view of the buffer. The zero value selects everything.
type Filter struct {
	UnreadOnly bool
	Kinds      []protocol.Kind
}

func (f Filter) match(n protocol.Notification) bool {
	if f.UnreadOnly && n.Read {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, n.Type) {
		return false
	}
	return true
}

// View computes the filtered buffer on demand.
func (s *Store) View(f Filter) []protocol.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Notification, 0, len(s.records))
	for _, n := range s.records {
		if f.match(n) {
			out = append(out, n)
		}
	}
	return out
}
