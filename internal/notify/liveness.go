package notify

import (
	"time"

	"github.com/garrettladley/rally/internal/protocol"
	"github.com/garrettladley/rally/internal/xslog"
)

// liveness sends a ping every interval while the channel is
// authenticated. It keeps proxies from idling the socket out; only when
// missLimit is set does an unanswered run of pings count as a dead
// channel.
type liveness struct {
	interval  time.Duration
	missLimit int
	timer     Timer
	epoch     uint64
	missed    int
}

// stop must be called with the client lock held. Bumping the epoch turns
// a timer that already fired but has not taken the lock into a no-op.
func (l *liveness) stop() {
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *liveness) pong() {
	l.missed = 0
}

func (c *Client) startLivenessLocked() {
	c.live.stop()
	c.live.missed = 0
	c.armLivenessLocked()
}

func (c *Client) armLivenessLocked() {
	epoch := c.live.epoch
	c.live.timer = c.clock.AfterFunc(c.live.interval, func() { c.heartbeat(epoch) })
}

func (c *Client) heartbeat(epoch uint64) {
	c.mu.Lock()
	if c.live.epoch != epoch || c.state != StateAuthenticated {
		c.mu.Unlock()
		return
	}
	c.live.timer = nil

	if c.live.missLimit > 0 && c.live.missed >= c.live.missLimit {
		c.logger.Warn("heartbeat unanswered", xslog.Count(c.live.missed))
		after := c.lostLocked(errStale)
		c.mu.Unlock()
		c.flush(after...)
		return
	}

	frame, err := protocol.Encode(protocol.TypePing, nil)
	if err == nil {
		err = c.writeLocked(frame)
	}
	if err != nil {
		after := c.lostLocked(err)
		c.mu.Unlock()
		c.flush(after...)
		return
	}

	c.live.missed++
	c.armLivenessLocked()
	c.mu.Unlock()
}
