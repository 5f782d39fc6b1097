package notification

import (
	"context"

	"github.com/garrettladley/rally/internal/protocol"
)

type Service interface {
	// History returns the newest notifications for a user and the total
	// unread count, which may exceed what the page holds.
	History(ctx context.Context, userID string, limit int) (*protocol.History, error)

	// MarkRead flips the given ids to read and reports how many changed.
	MarkRead(ctx context.Context, userID string, ids []string) (int, error)

	// Publish validates, stores and fans out n.
	Publish(ctx context.Context, userID string, n protocol.Notification) (protocol.Notification, error)

	// SignalInvitations tells every live channel of the user to refetch invitations.
	SignalInvitations(ctx context.Context, userID string) error

	// Subscribe streams encoded frames for a user's live channel.
	Subscribe(ctx context.Context, userID string) (<-chan []byte, func(), error)
}
