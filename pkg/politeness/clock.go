// Package politeness spaces out requests to the same host.
package politeness

import (
	"context"
	"sync"
	"time"
)

// Clock tracks the last scheduled request per host. Reservations are made
// under the lock, so concurrent callers for one host are spaced at least
// MinDelay apart.
type Clock struct {
	MinDelay time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewClock(minDelay time.Duration) *Clock {
	return &Clock{
		MinDelay: minDelay,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// WithNow swaps the time source. Used by tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	c.now = now
	return c
}

// Reserve returns how long the caller must wait before contacting host and
// records the resulting request time.
func (c *Clock) Reserve(host string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var wait time.Duration
	if last, ok := c.last[host]; ok {
		wait = max(0, c.MinDelay-now.Sub(last))
	}
	c.last[host] = now.Add(wait)
	return wait
}

// WaitFor blocks until host may be contacted again or ctx is done.
func (c *Clock) WaitFor(ctx context.Context, host string) error {
	wait := c.Reserve(host)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Clock) Last(host string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[host]
	return t, ok
}
