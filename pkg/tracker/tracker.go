// Package tracker keeps the lifecycle state of crawl runs.
package tracker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/devraulu/sitescout/pkg/model"
	"github.com/google/uuid"
)

type Status string

const (
	StatusStarting  Status = "starting"
	StatusCrawling  Status = "crawling"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

var (
	ErrRunNotFound = errors.New("crawl run not found")
	ErrRunExists   = errors.New("crawl run already exists")
	ErrRunFinished = errors.New("crawl run already finished")
)

const DefaultHistorySize = 50

type Counters struct {
	Queued   int   `json:"queued"`
	InFlight int   `json:"inFlight"`
	Crawled  int   `json:"crawled"`
	Errored  int   `json:"errored"`
	Found    int   `json:"found"`
	Skipped  int   `json:"skipped"`
	Retries  int64 `json:"retries"`
}

// Update carries absolute counter values. Total is the expected number of
// pages for the run and drives Progress and EtaMs.
type Update struct {
	Counters
	Total int
}

// Run is a snapshot; mutating it does not affect the tracker.
type Run struct {
	ID        string             `json:"id"`
	Status    Status             `json:"status"`
	StartedAt time.Time          `json:"startedAt"`
	EndedAt   *time.Time         `json:"endedAt,omitempty"`
	Counters  Counters           `json:"counters"`
	Total     int                `json:"total"`
	Progress  float64            `json:"progress"`
	EtaMs     int64              `json:"etaMs"`
	Options   any                `json:"options,omitempty"`
	Summary   any                `json:"summary,omitempty"`
	Error     string             `json:"error,omitempty"`
	Errors    []model.ErrorEntry `json:"errors,omitempty"`
}

type run struct {
	Run
	log *ErrorLog
}

func (r *run) snapshot() Run {
	s := r.Run
	s.Errors = r.log.Entries()
	if r.EndedAt != nil {
		t := *r.EndedAt
		s.EndedAt = &t
	}
	return s
}

type Tracker struct {
	mu          sync.Mutex
	active      map[string]*run
	history     []*run
	historySize int
	errorCap    int
	now         func() time.Time
}

func New(historySize, errorCap int) *Tracker {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Tracker{
		active:      make(map[string]*run),
		historySize: historySize,
		errorCap:    errorCap,
		now:         time.Now,
	}
}

// WithNow swaps the time source. Used by tests.
func (t *Tracker) WithNow(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func NewID() string {
	return uuid.NewString()
}

func (t *Tracker) Start(id string, options any) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[id]; ok {
		return Run{}, fmt.Errorf("%w: %s", ErrRunExists, id)
	}
	if t.findHistory(id) != nil {
		return Run{}, fmt.Errorf("%w: %s", ErrRunExists, id)
	}

	r := &run{
		Run: Run{
			ID:        id,
			Status:    StatusStarting,
			StartedAt: t.now(),
			Options:   options,
		},
		log: NewErrorLog(t.errorCap),
	}
	t.active[id] = r
	return r.snapshot(), nil
}

func (t *Tracker) Update(id string, u Update) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.activeRun(id)
	if err != nil {
		return Run{}, err
	}

	r.Status = StatusCrawling
	r.Counters = u.Counters
	r.Total = u.Total

	if u.Total > 0 {
		r.Progress = min(1, float64(u.Crawled)/float64(u.Total))
	}
	if u.Crawled > 0 {
		elapsed := t.now().Sub(r.StartedAt)
		remaining := max(0, u.Total-u.Crawled)
		r.EtaMs = (elapsed.Milliseconds() / int64(u.Crawled)) * int64(remaining)
	}

	return r.snapshot(), nil
}

// RecordError appends to the run's capped error log. Finished runs reject
// new entries.
func (t *Tracker) RecordError(id string, e model.ErrorEntry) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.activeRun(id)
	if err != nil {
		return err
	}

	if e.OccurredAt.IsZero() {
		e.OccurredAt = t.now()
	}
	e.RunID = id
	r.log.Append(e)
	return nil
}

func (t *Tracker) Finish(id string, summary any) (Run, error) {
	return t.end(id, StatusCompleted, summary, "")
}

func (t *Tracker) Fail(id string, cause error) (Run, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.end(id, StatusError, nil, msg)
}

func (t *Tracker) end(id string, status Status, summary any, msg string) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.activeRun(id)
	if err != nil {
		return Run{}, err
	}

	now := t.now()
	r.Status = status
	r.EndedAt = &now
	r.Summary = summary
	r.Error = msg
	r.EtaMs = 0
	if status == StatusCompleted {
		r.Progress = 1
	}

	delete(t.active, id)
	t.history = append(t.history, r)
	if over := len(t.history) - t.historySize; over > 0 {
		t.history = append(t.history[:0:0], t.history[over:]...)
	}

	return r.snapshot(), nil
}

func (t *Tracker) Get(id string) (Run, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.active[id]; ok {
		return r.snapshot(), nil
	}
	if r := t.findHistory(id); r != nil {
		return r.snapshot(), nil
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

func (t *Tracker) Active() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	runs := make([]Run, 0, len(t.active))
	for _, r := range t.active {
		runs = append(runs, r.snapshot())
	}
	return runs
}

// History returns finished runs, oldest first.
func (t *Tracker) History() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()

	runs := make([]Run, 0, len(t.history))
	for _, r := range t.history {
		runs = append(runs, r.snapshot())
	}
	return runs
}

type Stats struct {
	Active       int `json:"active"`
	Completed    int `json:"completed"`
	Failed       int `json:"failed"`
	PagesCrawled int `json:"pagesCrawled"`
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{Active: len(t.active)}
	for _, r := range t.active {
		s.PagesCrawled += r.Counters.Crawled
	}
	for _, r := range t.history {
		switch r.Status {
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Failed++
		}
		s.PagesCrawled += r.Counters.Crawled
	}
	return s
}

func (t *Tracker) activeRun(id string) (*run, error) {
	if r, ok := t.active[id]; ok {
		return r, nil
	}
	if t.findHistory(id) != nil {
		return nil, fmt.Errorf("%w: %s", ErrRunFinished, id)
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
}

func (t *Tracker) findHistory(id string) *run {
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].ID == id {
			return t.history[i]
		}
	}
	return nil
}
