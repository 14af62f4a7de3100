package frontier

import (
	"log/slog"
	netUrl "net/url"
	"strings"
	"sync"

	"github.com/devraulu/sitescout/pkg/model"
)

type State int

const (
	Idle State = iota
	Seeding
	Draining
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Seeding:
		return "seeding"
	case Draining:
		return "draining"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Status is the outcome of a Next call.
type Status int

const (
	// Ready means a task was returned.
	Ready Status = iota
	// Waiting means nothing is queued but in-flight work may still add links.
	Waiting
	// Done means nothing is queued or in flight, or the frontier was closed.
	Done
)

type HostQueue struct {
	Host  string
	Tasks []model.Task
}

// Frontier holds pending work grouped by host. A URL lives in at most one of
// queued, in-flight or visited, and hosts are served round-robin.
type Frontier struct {
	mu       sync.Mutex
	maxDepth int
	state    State

	queues map[string]*HostQueue
	order  []string
	cursor int

	queued   map[string]struct{}
	inFlight map[string]struct{}
	visited  map[string]struct{}
}

// NewFrontier creates an empty frontier. A negative maxDepth disables the
// depth limit.
func NewFrontier(maxDepth int) *Frontier {
	return &Frontier{
		maxDepth: maxDepth,
		queues:   make(map[string]*HostQueue),
		queued:   make(map[string]struct{}),
		inFlight: make(map[string]struct{}),
		visited:  make(map[string]struct{}),
	}
}

// Seed queues the initial tasks. It fails with ErrNoSeeds when none of them
// could be queued.
func (f *Frontier) Seed(tasks []model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.state = Seeding
	for _, t := range tasks {
		f.push(t)
	}

	if f.pending() == 0 {
		f.state = Exhausted
		return ErrNoSeeds
	}

	f.state = Draining
	slog.Info("frontier seeded", slog.Int("count", f.pending()), slog.Int("hosts", len(f.order)))
	return nil
}

// Push queues t unless its URL was already seen, it is too deep, or the
// frontier is closed.
func (f *Frontier) Push(t model.Task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.push(t)
}

func (f *Frontier) push(t model.Task) bool {
	if f.state == Exhausted {
		return false
	}
	if f.maxDepth >= 0 && t.Depth > f.maxDepth {
		return false
	}
	if f.seen(t.URL) {
		slog.Debug("frontier duplicate, skipping", slog.String("url", t.URL))
		return false
	}

	host, err := getHost(t.URL)
	if err != nil || host == "" {
		slog.Error("frontier bad url", slog.String("url", t.URL), slog.Any("err", err))
		return false
	}

	hq, ok := f.queues[host]
	if !ok {
		hq = &HostQueue{Host: host}
		f.queues[host] = hq
		f.order = append(f.order, host)
	}

	hq.Tasks = append(hq.Tasks, t)
	f.queued[t.URL] = struct{}{}
	slog.Debug("frontier push", slog.String("host", host), slog.String("url", t.URL), slog.Int("queue_len", len(hq.Tasks)))
	return true
}

// Next hands out the head of the next non-empty host queue after the one
// served last, marking it in flight.
func (f *Frontier) Next() (model.Task, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Exhausted {
		return model.Task{}, Done
	}

	for i := 0; i < len(f.order); i++ {
		idx := (f.cursor + i) % len(f.order)
		hq := f.queues[f.order[idx]]
		if len(hq.Tasks) == 0 {
			continue
		}

		t := hq.Tasks[0]
		hq.Tasks = hq.Tasks[1:]
		f.cursor = (idx + 1) % len(f.order)

		delete(f.queued, t.URL)
		if f.maxDepth >= 0 && t.Depth > f.maxDepth {
			f.visited[t.URL] = struct{}{}
			i = -1
			continue
		}

		f.inFlight[t.URL] = struct{}{}
		return t, Ready
	}

	if len(f.inFlight) > 0 {
		return model.Task{}, Waiting
	}

	f.state = Exhausted
	return model.Task{}, Done
}

// Done moves url from in-flight to visited.
func (f *Frontier) Done(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, url)
	f.visited[url] = struct{}{}
}

// Claim marks url visited without queueing it. It returns false when url is
// already queued, in flight or visited, so a redirect target is only ever
// recorded once.
func (f *Frontier) Claim(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen(url) {
		return false
	}
	f.visited[url] = struct{}{}
	return true
}

// Close stops the frontier from accepting or handing out work. Queued tasks
// are dropped.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Exhausted
	for _, hq := range f.queues {
		for _, t := range hq.Tasks {
			delete(f.queued, t.URL)
		}
		hq.Tasks = nil
	}
}

func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen(url)
}

func (f *Frontier) seen(url string) bool {
	if _, ok := f.queued[url]; ok {
		return true
	}
	if _, ok := f.inFlight[url]; ok {
		return true
	}
	_, ok := f.visited[url]
	return ok
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending()
}

func (f *Frontier) pending() int {
	count := 0
	for _, hq := range f.queues {
		count += len(hq.Tasks)
	}
	return count
}

func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inFlight)
}

func (f *Frontier) Visited() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

func (f *Frontier) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Hosts returns the hosts seen so far in first-seen order.
func (f *Frontier) Hosts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func getHost(str string) (string, error) {
	u, err := netUrl.Parse(str)
	if err != nil {
		return "", err
	}
	return strings.ToLower(u.Hostname()), nil
}
