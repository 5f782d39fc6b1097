package notify

import "time"

const (
	DefaultReconnectDelay = 5 * time.Second
	defaultMaxDelay       = 30 * time.Second
)

// Backoff decides how long to wait before reconnect attempt n (zero based).
// With Factor <= 1 the delay is flat.
type Backoff struct {
	Delay       time.Duration
	MaxDelay    time.Duration
	Factor      float64
	MaxAttempts int // 0 means retry until Disconnect
}

func (b Backoff) withDefaults() Backoff {
	if b.Delay <= 0 {
		b.Delay = DefaultReconnectDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = max(defaultMaxDelay, b.Delay)
	}
	return b
}

func (b Backoff) next(attempt int) time.Duration {
	b = b.withDefaults()
	if b.Factor <= 1 {
		return b.Delay
	}
	d := float64(b.Delay)
	for range attempt {
		d *= b.Factor
		if d >= float64(b.MaxDelay) {
			return b.MaxDelay
		}
	}
	return time.Duration(d)
}

func (b Backoff) exhausted(attempt int) bool {
	return b.MaxAttempts > 0 && attempt >= b.MaxAttempts
}
