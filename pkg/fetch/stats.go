package fetch

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is shared by every worker of a run.
type Stats struct {
	retries atomic.Int64

	mu       sync.Mutex
	requests int64
	meanMs   float64
}

type StatsSnapshot struct {
	Retries           int64   `json:"retries"`
	Requests          int64   `json:"requests"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

func (s *Stats) AddRetry() {
	s.retries.Add(1)
}

// Observe folds one response time into the running mean.
func (s *Stats) Observe(d time.Duration) {
	ms := float64(d) / float64(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.meanMs += (ms - s.meanMs) / float64(s.requests)
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Retries:           s.retries.Load(),
		Requests:          s.requests,
		AvgResponseTimeMs: s.meanMs,
	}
}
