package engine

import (
	"sync"
	"time"
)

// windowLimiter admits at most limit events per fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	start   time.Time
	count   int
	dropped int
}

func newWindowLimiter(limit int, window time.Duration) *windowLimiter {
	return &windowLimiter{limit: limit, window: window}
}

// allow counts one event at now. Over the limit it returns false along with
// whether this is the first refusal in the current window.
func (l *windowLimiter) allow(now time.Time) (ok, first bool) {
	if l == nil || l.limit <= 0 {
		return true, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.start) >= l.window {
		l.start, l.count, l.dropped = now, 0, 0
	}
	if l.count >= l.limit {
		l.dropped++
		return false, l.dropped == 1
	}
	l.count++
	return true, false
}
