package notification

import (
	"context"
	"fmt"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/storage"
	"github.com/garrettladley/rally/internal/validator"
	"github.com/garrettladley/rally/internal/xerrors"
	"github.com/garrettladley/rally/internal/xslog"
)

const (
	maxTitleLength   = 200
	maxMessageLength = 2000
	maxReadBatch     = 500
)

type Store struct {
	store *storage.NotificationStore
}

var _ Service = (*Store)(nil)

func NewStore(store *storage.NotificationStore) *Store {
	return &Store{store: store}
}

func (s *Store) History(ctx context.Context, userID string, limit int) (*protocol.History, error) {
	notifications, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	if notifications == nil {
		notifications = []protocol.Notification{}
	}
	return &protocol.History{Notifications: notifications, Unread: unread}, nil
}

func (s *Store) MarkRead(ctx context.Context, userID string, ids []string) (int, error) {
	if verr := validator.Validate(markReadInput(ids)); verr != nil {
		return 0, verr
	}
	return s.store.MarkRead(ctx, userID, ids...)
}

func (s *Store) Publish(ctx context.Context, userID string, n protocol.Notification) (protocol.Notification, error) {
	if verr := validator.Validate(publishInput{userID: userID, n: n}); verr != nil {
		return n, verr
	}

	// clients own read state; a published notification always starts unread
	n.Read = false

	stored, inserted, err := s.store.Add(ctx, userID, n)
	if err != nil {
		return stored, err
	}
	if !inserted {
		xslog.FromContext(ctx).InfoContext(ctx, "duplicate notification ignored",
			xslog.NotificationID(stored.ID),
			xslog.UserID(userID),
		)
	}
	return stored, nil
}

func (s *Store) SignalInvitations(ctx context.Context, userID string) error {
	if userID == "" {
		return xerrors.Validation(map[string]string{"userId": "required"})
	}
	return s.store.Signal(ctx, userID, protocol.TypeInvitationsUpdated)
}

func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error) {
	return s.store.Subscribe(ctx, userID)
}

type publishInput struct {
	userID string
	n      protocol.Notification
}

func (in publishInput) Validate() map[string]string {
	fields := map[string]string{}
	if in.userID == "" {
		fields["userId"] = "required"
	}
	if !in.n.Type.Known() {
		fields["type"] = fmt.Sprintf("unknown notification type %q", in.n.Type)
	}
	switch {
	case in.n.Title == "":
		fields["title"] = "required"
	case len(in.n.Title) > maxTitleLength:
		fields["title"] = fmt.Sprintf("at most %d bytes", maxTitleLength)
	}
	if len(in.n.Message) > maxMessageLength {
		fields["message"] = fmt.Sprintf("at most %d bytes", maxMessageLength)
	}
	return fields
}

type markReadInput []string

func (ids markReadInput) Validate() map[string]string {
	if len(ids) > maxReadBatch {
		return map[string]string{"ids": fmt.Sprintf("at most %d ids per request", maxReadBatch)}
	}
	return nil
}
