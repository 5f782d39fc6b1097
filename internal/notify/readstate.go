package notify

import (
	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/xslog"
)

// MarkRead flips id locally right away and, if the channel is
// authenticated, tells the server. Without a channel the intent is
// dropped; the server's state wins on the next history fetch.
func (c *Client) MarkRead(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.MarkRead(id)
	c.sendMarkReadLocked(id)
}

// MarkAllRead flips every buffered unread record and sends one
// mark_notification_read per id.
func (c *Client) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.store.MarkAllRead() {
		c.sendMarkReadLocked(id)
	}
}

func (c *Client) sendMarkReadLocked(id string) {
	if c.state != StateAuthenticated {
		c.logger.Debug("read state not synced, channel down", xslog.NotificationID(id))
		return
	}

	frame, err := protocol.MarkReadFrame(id)
	if err == nil {
		err = c.writeLocked(frame)
	}
	if err != nil {
		c.logger.Warn("failed to send read state",
			xslog.NotificationID(id),
			xslog.Error(err),
		)
	}
}
