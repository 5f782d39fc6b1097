package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/garrettladley/rally/internal/protocol"
)

// NotificationStore persists notifications and pushes them to live
// channels. History is the source of truth; the broker only carries
// frames to whoever is connected right now.
type NotificationStore struct {
	history History
	broker  Broker
}

func NewNotificationStore(history History, broker Broker) *NotificationStore {
	return &NotificationStore{history: history, broker: broker}
}

// Add stores n and publishes it to userID's live channels. An empty id is
// replaced with a fresh one. A duplicate id is neither stored nor
// published again, and Add reports false.
func (s *NotificationStore) Add(ctx context.Context, userID string, n protocol.Notification) (protocol.Notification, bool, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n = stamp(n)

	inserted, err := s.history.Insert(ctx, userID, n)
	if err != nil {
		return n, false, fmt.Errorf("failed to store notification: %w", err)
	}
	if !inserted {
		return n, false, nil
	}

	frame, err := protocol.NotificationFrame(n)
	if err != nil {
		return n, true, err
	}
	if err := s.broker.Publish(ctx, userID, frame); err != nil {
		return n, true, fmt.Errorf("failed to publish notification: %w", err)
	}

	if n.Type.IsInvitation() {
		if err := s.Signal(ctx, userID, protocol.TypeInvitationsUpdated); err != nil {
			return n, true, err
		}
	}
	return n, true, nil
}

// Signal publishes a payload-less frame of type t.
func (s *NotificationStore) Signal(ctx context.Context, userID string, t protocol.Type) error {
	frame, err := protocol.Encode(t, nil)
	if err != nil {
		return err
	}
	if err := s.broker.Publish(ctx, userID, frame); err != nil {
		return fmt.Errorf("failed to publish %s: %w", t, err)
	}
	return nil
}

func (s *NotificationStore) List(ctx context.Context, userID string, limit int) ([]protocol.Notification, error) {
	return s.history.List(ctx, userID, limit)
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.history.UnreadCount(ctx, userID)
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return s.history.MarkRead(ctx, userID, ids...)
}

func (s *NotificationStore) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	return s.broker.Subscribe(ctx, userID)
}

func (s *NotificationStore) Ping(ctx context.Context) error {
	return errors.Join(s.history.Ping(ctx), s.broker.Ping(ctx))
}

func (s *NotificationStore) Close() error {
	return errors.Join(s.broker.Close(), s.history.Close())
}
