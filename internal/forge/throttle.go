package forge

import (
	"context"
	"sync"
	"time"
)

// Throttle enforces a minimum interval between successive calls. The sync
// loop issues mutations in tight succession (one invitation per member, one
// binding per repo); spacing them out keeps the platform's abuse detection
// quiet.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewThrottle creates a throttle with the given minimum interval between
// calls. A zero or negative interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Wait blocks until the caller may proceed, reserving the next slot before
// sleeping so concurrent callers queue up in order.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.interval <= 0 {
		return nil
	}

	t.mu.Lock()
	now := time.Now()
	next := t.last.Add(t.interval)

	var wait time.Duration
	if next.After(now) {
		wait = next.Sub(now)
		t.last = next
	} else {
		t.last = now
	}
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}
