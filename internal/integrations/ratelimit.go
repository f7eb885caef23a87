package integrations

import (
	"sync"
	"time"
)

// MinSenderInterval is the minimum gap between handled messages from one
// sender on one platform.
const MinSenderInterval = 3 * time.Second

// Limiter enforces the per-sender message interval.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewLimiter returns a Limiter with the given interval. Zero means
// MinSenderInterval.
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = MinSenderInterval
	}
	return &Limiter{
		interval: interval,
		last:     map[string]time.Time{},
		now:      time.Now,
	}
}

// Allow reports whether a message from the sender may be handled now, and
// records the attempt when it may.
func (l *Limiter) Allow(platform, from string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := platform + "\x00" + from
	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.interval {
		return false
	}
	l.last[key] = now
	return true
}
