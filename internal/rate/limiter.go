// Package rate caps how many requests a caller may make per window.
package rate

import (
	"sync"
	"time"
)

// Limiter is a fixed-window counter keyed by caller. Allow reports whether
// one more request fits in the current window and how long until it resets.
type Limiter interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration)
}

// MemoryLimiter keeps counters in process. Counters are lost on restart and
// not shared between instances; see RedisLimiter for that.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	now      func() time.Time
}

type counter struct {
	hits    int
	span    time.Duration
	expires time.Time
}

func (c *counter) expired(now time.Time) bool {
	return !now.Before(c.expires)
}

func NewMemory() *MemoryLimiter {
	return &MemoryLimiter{counters: map[string]*counter{}, now: time.Now}
}

func (m *MemoryLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	c := m.counters[key]
	// a changed window size starts a fresh count
	if c == nil || c.expired(now) || c.span != window {
		c = &counter{span: window, expires: now.Add(window)}
		m.counters[key] = c
	}

	retry := c.expires.Sub(now)
	if c.hits >= limit {
		return false, retry
	}
	c.hits++
	return true, retry
}

// Sweep drops counters whose window has ended and returns how many it removed.
func (m *MemoryLimiter) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for key, c := range m.counters {
		if c.expired(now) {
			delete(m.counters, key)
			n++
		}
	}
	return n
}
