package tracker

import (
	"sync"

	"github.com/devraulu/sitescout/pkg/model"
)

const DefaultErrorLogCap = 1000

// ErrorLog is an append-only log that keeps only the newest Cap entries.
type ErrorLog struct {
	mu      sync.Mutex
	cap     int
	entries []model.ErrorEntry
	dropped int
}

func NewErrorLog(capacity int) *ErrorLog {
	if capacity <= 0 {
		capacity = DefaultErrorLogCap
	}
	return &ErrorLog{cap: capacity}
}

func (l *ErrorLog) Append(e model.ErrorEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.cap; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
		l.dropped += over
	}
}

func (l *ErrorLog) Entries() []model.ErrorEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ErrorEntry(nil), l.entries...)
}

func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Dropped is the number of entries evicted to stay under the cap.
func (l *ErrorLog) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
