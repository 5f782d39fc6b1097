package storage

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

var _ RateLimiter = (*MemoryRateLimiter)(nil)

// MemoryRateLimiter keeps one token bucket per key.
type MemoryRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewMemoryRateLimiter(perSecond float64, burst int) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    max(burst, 1),
	}
}

func (m *MemoryRateLimiter) Allow(_ context.Context, key string) (RateLimitResult, error) {
	limiter := m.limiter(key)

	r := limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return RateLimitResult{RetryAfter: delay}, nil
	}
	return RateLimitResult{Allowed: true}, nil
}

func (m *MemoryRateLimiter) limiter(key string) *rate.Limiter {
	m.mu.RLock()
	limiter, ok := m.limiters[key]
	m.mu.RUnlock()
	if ok {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, ok = m.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(m.limit, m.burst)
	m.limiters[key] = limiter
	return limiter
}
