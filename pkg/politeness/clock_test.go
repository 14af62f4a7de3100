package politeness_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/devraulu/sitescout/pkg/politeness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockReserve(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := politeness.NewClock(time.Second).WithNow(func() time.Time { return now })

	assert.Zero(t, c.Reserve("a.com"), "first request to a host never waits")
	assert.Equal(t, time.Second, c.Reserve("a.com"))
	assert.Equal(t, 2*time.Second, c.Reserve("a.com"), "reservations stack for back-to-back callers")
	assert.Zero(t, c.Reserve("b.com"), "hosts are independent")

	now = now.Add(5 * time.Second)
	assert.Zero(t, c.Reserve("a.com"))

	last, ok := c.Last("a.com")
	require.True(t, ok)
	assert.Equal(t, now, last)
}

func TestClockWaitForSpacesConcurrentCallers(t *testing.T) {
	t.Parallel()

	const delay = 40 * time.Millisecond
	c := politeness.NewClock(delay)

	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.WaitFor(context.Background(), "example.com"))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, times, 3)
	first, last := times[0], times[0]
	for _, ts := range times {
		if ts.Before(first) {
			first = ts
		}
		if ts.After(last) {
			last = ts
		}
	}
	assert.GreaterOrEqual(t, last.Sub(first), 2*delay-5*time.Millisecond)
}

func TestClockWaitForCancelled(t *testing.T) {
	t.Parallel()

	c := politeness.NewClock(time.Hour)
	require.NoError(t, c.WaitFor(context.Background(), "slow.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.WaitFor(ctx, "slow.com"), context.Canceled)
}
