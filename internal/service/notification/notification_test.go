package notification

import (
	"net/http"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/xerrors"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	ns := storage.NewNotificationStore(storage.NewMemoryHistory(), storage.NewMemoryBroker())
	t.Cleanup(func() { _ = ns.Close() })
	return NewStore(ns)
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		userID string
		n      protocol.Notification
		fields []string
	}{
		{
			name:   "valid",
			userID: "u-1",
			n:      protocol.Notification{Type: protocol.KindSystem, Title: "hi"},
		},
		{
			name:   "missing user and title",
			n:      protocol.Notification{Type: protocol.KindSystem},
			fields: []string{"title", "userId"},
		},
		{
			name:   "unknown kind",
			userID: "u-1",
			n:      protocol.Notification{Type: "telegram", Title: "hi"},
			fields: []string{"type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newStore(t).Publish(t.Context(), tt.userID, tt.n)
			if tt.fields == nil {
				if err != nil {
					t.Fatalf("Publish() error = %v", err)
				}
				return
			}

			appErr := xerrors.As(err)
			if appErr == nil || appErr.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("Publish() error = %v, want validation error", err)
			}
			var got []string
			for field := range appErr.Validation.Fields {
				got = append(got, field)
			}
			slices.Sort(got)
			if diff := cmp.Diff(tt.fields, got); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPublishForcesUnreadAndHistory(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := t.Context()

	if _, err := s.Publish(ctx, "u-1", protocol.Notification{ID: "n-1", Type: protocol.KindPostLike, Title: "like", Read: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Publish(ctx, "u-1", protocol.Notification{ID: "n-1", Type: protocol.KindPostLike, Title: "like"}); err != nil {
		t.Fatalf("duplicate Publish() error = %v", err)
	}

	page, err := s.History(ctx, "u-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Notifications) != 1 || page.Notifications[0].Read {
		t.Fatalf("History() = %+v, want one unread record", page.Notifications)
	}
	if page.Unread != 1 {
		t.Errorf("Unread = %d, want 1", page.Unread)
	}

	empty, err := s.History(ctx, "nobody", 0)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Notifications == nil {
		t.Error("History() for unknown user returned nil slice")
	}
}

func TestMarkReadBatchLimit(t *testing.T) {
	t.Parallel()

	ids := make([]string, maxReadBatch+1)
	_, err := newStore(t).MarkRead(t.Context(), "u-1", ids)
	if appErr := xerrors.As(err); appErr == nil || appErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("MarkRead() error = %v, want validation error", err)
	}
}
