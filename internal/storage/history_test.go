package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/garrettladley/rally/internal/protocol"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(id string, offset time.Duration) protocol.Notification {
	return protocol.Notification{
		ID:        id,
		Type:      protocol.KindPostLike,
		Title:     "title " + id,
		Message:   "message " + id,
		Timestamp: base.Add(offset),
	}
}

func histories(t *testing.T) map[string]func(t *testing.T) History {
	t.Helper()
	return map[string]func(t *testing.T) History{
		"memory": func(t *testing.T) History {
			h := NewMemoryHistory()
			t.Cleanup(func() { _ = h.Close() })
			return h
		},
		"sqlite": func(t *testing.T) History {
			h, err := NewSQLiteHistory(t.Context(), ":memory:")
			if err != nil {
				t.Fatalf("NewSQLiteHistory() error = %v", err)
			}
			t.Cleanup(func() { _ = h.Close() })
			return h
		},
	}
}

func TestHistoryInsertAndList(t *testing.T) {
	t.Parallel()

	for name, open := range histories(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := open(t)
			ctx := t.Context()

			withData := record("n-2", 2*time.Minute)
			withData.Type = protocol.KindMatchInvitation
			withData.Data = map[string]any{"matchId": "m-9"}

			for _, n := range []protocol.Notification{record("n-1", time.Minute), withData, record("n-0", 0)} {
				ok, err := h.Insert(ctx, "u-1", n)
				if err != nil || !ok {
					t.Fatalf("Insert(%s) = %v, %v", n.ID, ok, err)
				}
			}
			if _, err := h.Insert(ctx, "u-2", record("other", 3*time.Minute)); err != nil {
				t.Fatal(err)
			}

			ok, err := h.Insert(ctx, "u-1", record("n-1", time.Hour))
			if err != nil {
				t.Fatalf("duplicate Insert() error = %v", err)
			}
			if ok {
				t.Error("duplicate Insert() = true")
			}

			got, err := h.List(ctx, "u-1", 0)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			want := []protocol.Notification{withData, record("n-1", time.Minute), record("n-0", 0)}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}

			got, err = h.List(ctx, "u-1", 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Errorf("List(limit=2) returned %d records", len(got))
			}

			got, err = h.List(ctx, "nobody", 10)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]protocol.Notification{}, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("List(nobody) mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHistoryMarkRead(t *testing.T) {
	t.Parallel()

	for name, open := range histories(t) {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := open(t)
			ctx := t.Context()

			for i := range 4 {
				if _, err := h.Insert(ctx, "u-1", record(fmt.Sprintf("n-%d", i), time.Duration(i)*time.Second)); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := h.Insert(ctx, "u-2", record("foreign", 0)); err != nil {
				t.Fatal(err)
			}

			tests := []struct {
				ids        []string
				wantFlip   int
				wantUnread int
			}{
				{ids: nil, wantFlip: 0, wantUnread: 4},
				{ids: []string{"n-0", "n-1"}, wantFlip: 2, wantUnread: 2},
				{ids: []string{"n-1", "missing", "foreign"}, wantFlip: 0, wantUnread: 2},
				{ids: []string{"n-2", "n-3"}, wantFlip: 2, wantUnread: 0},
			}
			for _, tt := range tests {
				flipped, err := h.MarkRead(ctx, "u-1", tt.ids...)
				if err != nil {
					t.Fatalf("MarkRead(%v) error = %v", tt.ids, err)
				}
				if flipped != tt.wantFlip {
					t.Errorf("MarkRead(%v) = %d, want %d", tt.ids, flipped, tt.wantFlip)
				}
				unread, err := h.UnreadCount(ctx, "u-1")
				if err != nil {
					t.Fatal(err)
				}
				if unread != tt.wantUnread {
					t.Errorf("UnreadCount() after %v = %d, want %d", tt.ids, unread, tt.wantUnread)
				}
			}

			foreign, err := h.UnreadCount(ctx, "u-2")
			if err != nil {
				t.Fatal(err)
			}
			if foreign != 1 {
				t.Errorf("foreign UnreadCount() = %d, want 1", foreign)
			}

			list, err := h.List(ctx, "u-1", 0)
			if err != nil {
				t.Fatal(err)
			}
			for _, n := range list {
				if !n.Read {
					t.Errorf("%s not read after MarkRead", n.ID)
				}
			}
		})
	}
}

func TestMemoryHistoryClosed(t *testing.T) {
	t.Parallel()

	h := NewMemoryHistory()
	_ = h.Close()

	if _, err := h.Insert(t.Context(), "u-1", record("n-1", 0)); err != ErrClosed {
		t.Errorf("Insert() error = %v, want ErrClosed", err)
	}
	if _, err := h.List(t.Context(), "u-1", 0); err != ErrClosed {
		t.Errorf("List() error = %v, want ErrClosed", err)
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want int
	}{
		{in: -1, want: DefaultHistoryLimit},
		{in: 0, want: DefaultHistoryLimit},
		{in: 7, want: 7},
		{in: MaxHistoryLimit + 1, want: MaxHistoryLimit},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
