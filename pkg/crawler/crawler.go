package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	frontier "github.com/devraulu/sitescout/pkg"
	"github.com/devraulu/sitescout/pkg/analysis"
	"github.com/devraulu/sitescout/pkg/classify"
	"github.com/devraulu/sitescout/pkg/fetch"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/politeness"
	"github.com/devraulu/sitescout/pkg/process"
	"github.com/devraulu/sitescout/pkg/sitemap"
	"github.com/devraulu/sitescout/pkg/storage"
	"github.com/devraulu/sitescout/pkg/tracker"
	"golang.org/x/sync/semaphore"
)

type CrawlStats struct {
	StartTime  time.Time
	dispatched atomic.Int64
	crawled    atomic.Int64
	errored    atomic.Int64
	skipped    atomic.Int64
	found      atomic.Int64
}

func (s *CrawlStats) Elapsed() time.Duration {
	return time.Since(s.StartTime)
}

func (s *CrawlStats) PagesPerSecond() float64 {
	elapsed := s.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(s.crawled.Load()) / elapsed
}

// Crawler runs crawls. Collaborators are shared across runs; everything
// mutable about a run lives in its own runState.
type Crawler struct {
	store      storage.Store
	tracker    *tracker.Tracker
	classifier *classify.Classifier
	summarizer analysis.Summarizer
}

// New builds a crawler. store and summarizer may be nil.
func New(store storage.Store, tr *tracker.Tracker, classifier *classify.Classifier, summarizer analysis.Summarizer) *Crawler {
	if tr == nil {
		tr = tracker.New(0, 0)
	}
	if classifier == nil {
		classifier = classify.Default()
	}
	return &Crawler{
		store:      store,
		tracker:    tr,
		classifier: classifier,
		summarizer: summarizer,
	}
}

func (c *Crawler) Tracker() *tracker.Tracker {
	return c.tracker
}

type runState struct {
	id   string
	opts Options

	frontier *frontier.Frontier
	clock    *politeness.Clock
	fetcher  *fetch.Fetcher
	filter   *process.Filter
	robots   *process.RobotsChecker
	builder  *sitemap.Builder

	mu    sync.Mutex
	pages []model.PageRecord

	stats CrawlStats
	wake  chan struct{}
}

// Run crawls outward from seeds until the frontier is exhausted, MaxPages
// tasks have been dispatched, or ctx is cancelled. Only a seed list with no
// valid URLs is an error; per-URL failures end up in the report.
func (c *Crawler) Run(ctx context.Context, seeds []string, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	id := tracker.NewID()
	if _, err := c.tracker.Start(id, opts); err != nil {
		return nil, err
	}

	clock := politeness.NewClock(opts.CrawlDelay)
	r := &runState{
		id:       id,
		opts:     opts,
		frontier: frontier.NewFrontier(opts.MaxDepth),
		clock:    clock,
		fetcher: fetch.New(fetch.Config{
			UserAgent:    opts.UserAgent,
			Timeout:      opts.RequestTimeout,
			MaxRetries:   opts.MaxRetries,
			BaseDelay:    opts.RetryBaseDelay,
			MaxBodyBytes: opts.MaxBodyBytes,
			Wait: func(ctx context.Context, rawURL string) error {
				return clock.WaitFor(ctx, process.Host(rawURL))
			},
		}, nil),
		filter:  process.NewFilter(opts.MaxQueryParams),
		robots:  process.NewRobotsChecker(opts.UserAgent, opts.RobotsTimeout),
		builder: sitemap.NewBuilder(),
		wake:    make(chan struct{}, 1),
	}
	r.stats.StartTime = time.Now()

	seedTasks := frontier.SeedTasks(seeds)
	if err := r.frontier.Seed(seedTasks); err != nil {
		slog.Error("crawl aborted", slog.String("run_id", id), slog.Any("err", err))
		if _, ferr := c.tracker.Fail(id, err); ferr != nil {
			slog.Warn("failed to mark run as failed", slog.String("run_id", id), slog.Any("err", ferr))
		}
		return nil, fmt.Errorf("run %s: %w", id, err)
	}

	slog.Info("crawl started",
		slog.String("run_id", id),
		slog.Int("seeds", len(seedTasks)),
		slog.Int("max_pages", opts.MaxPages),
		slog.Int("max_depth", opts.MaxDepth),
		slog.Int("workers", opts.MaxConcurrency),
	)

	if opts.DiscoverSitemaps {
		c.discoverSitemaps(ctx, r, seedTasks)
	}

	c.coordinator(ctx, r)

	report := c.buildReport(r, ctx.Err() != nil)
	c.persistRun(context.WithoutCancel(ctx), r, report)

	if _, err := c.tracker.Finish(id, report.Summary); err != nil {
		slog.Warn("failed to finish run", slog.String("run_id", id), slog.Any("err", err))
	}

	slog.Info("crawl complete",
		slog.String("run_id", id),
		slog.Int("processed", report.Summary.TotalPages),
		slog.Int("errored", report.Summary.Errors),
		slog.Int("skipped", report.Summary.Skipped),
		slog.Duration("elapsed", r.stats.Elapsed()),
		slog.Float64("pages_per_sec", report.Summary.PagesPerSecond),
	)

	return report, nil
}

// coordinator hands tasks to workers while at most MaxConcurrency are in
// flight, then waits for the in-flight ones to drain.
func (c *Crawler) coordinator(ctx context.Context, r *runState) {
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrency))
	var wg sync.WaitGroup

loop:
	for ctx.Err() == nil {
		if r.stats.dispatched.Load() >= int64(r.opts.MaxPages) {
			slog.Info("crawl limit reached, closing frontier",
				slog.Int("limit", r.opts.MaxPages),
				slog.Int("queued", r.frontier.Len()),
			)
			r.frontier.Close()
			break
		}

		task, status := r.frontier.Next()
		switch status {
		case frontier.Done:
			slog.Info("frontier empty and no active workers. mission complete.")
			break loop
		case frontier.Waiting:
			select {
			case <-r.wake:
			case <-ctx.Done():
			}
			continue
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			r.frontier.Done(task.URL)
			break
		}

		r.stats.dispatched.Add(1)
		wg.Add(1)
		slog.Debug("job dispatched", slog.String("url", task.URL), slog.Int("depth", task.Depth))

		go func(task model.Task) {
			defer wg.Done()
			defer sem.Release(1)

			res := c.fetchAndProcess(ctx, r, task)
			c.processResult(ctx, r, res)
			r.frontier.Done(task.URL)
			c.updateProgress(r)

			select {
			case r.wake <- struct{}{}:
			default:
			}
		}(task)
	}

	wg.Wait()
	c.updateProgress(r)
}

func (c *Crawler) processResult(ctx context.Context, r *runState, res CrawlResult) {
	switch {
	case res.Error != nil:
		if ctx.Err() != nil {
			return
		}
		r.stats.errored.Add(1)
		c.recordError(r, res.Task.URL, fetch.Kind(res.Error), fetch.Attempts(res.Error), res.Error)
		slog.Error("crawl failed", slog.String("url", res.Task.URL), slog.Any("err", res.Error))
		return

	case res.Skipped || res.Page == nil:
		r.stats.skipped.Add(1)
		return
	}

	page := *res.Page
	r.stats.crawled.Add(1)

	r.mu.Lock()
	r.pages = append(r.pages, page)
	r.mu.Unlock()

	slog.Info("crawl success",
		slog.String("url", page.URL),
		slog.Int("outlinks", len(res.Links)),
		slog.Int("relevance", page.Relevance),
		slog.String("category", page.Category),
		slog.Float64("pages_per_sec", r.stats.PagesPerSecond()),
	)

	r.stats.skipped.Add(int64(res.Filtered))
	for _, link := range res.Links {
		if r.frontier.Push(model.Task{URL: link, Depth: res.Task.Depth + 1, Parent: page.URL}) {
			r.stats.found.Add(1)
		}
	}

	if c.store != nil {
		if err := c.store.Upsert(ctx, storage.CollectionPages, page.URL, page); err != nil {
			c.recordError(r, page.URL, "storage", 1, err)
			slog.Error("failed to save page", slog.String("url", page.URL), slog.Any("err", err))
		}
	}
}

func (c *Crawler) recordError(r *runState, url, kind string, attempt int, err error) {
	entry := model.ErrorEntry{
		URL:     url,
		Context: kind,
		Message: err.Error(),
		Attempt: attempt,
	}
	if rerr := c.tracker.RecordError(r.id, entry); rerr != nil {
		slog.Warn("failed to record error", slog.String("run_id", r.id), slog.Any("err", rerr))
	}
}

func (c *Crawler) updateProgress(r *runState) {
	crawled := int(r.stats.crawled.Load())
	queued := r.frontier.Len()
	total := min(r.opts.MaxPages, int(r.stats.dispatched.Load())+queued)

	_, err := c.tracker.Update(r.id, tracker.Update{
		Counters: tracker.Counters{
			Queued:   queued,
			InFlight: r.frontier.InFlight(),
			Crawled:  crawled,
			Errored:  int(r.stats.errored.Load()),
			Found:    int(r.stats.found.Load()),
			Skipped:  int(r.stats.skipped.Load()),
			Retries:  r.fetcher.Stats().Snapshot().Retries,
		},
		Total: total,
	})
	if err != nil {
		slog.Debug("progress update rejected", slog.String("run_id", r.id), slog.Any("err", err))
	}
}

func (c *Crawler) buildReport(r *runState, cancelled bool) *Report {
	r.mu.Lock()
	pages := append([]model.PageRecord(nil), r.pages...)
	r.mu.Unlock()
	sort.Slice(pages, func(i, j int) bool { return pages[i].URL < pages[j].URL })

	matched := 0
	for _, p := range pages {
		if p.DomainMatch {
			matched++
		}
	}

	fetchStats := r.fetcher.Stats().Snapshot()
	doc := r.builder.Document()

	var errs []model.ErrorEntry
	if run, err := c.tracker.Get(r.id); err == nil {
		errs = run.Errors
	}
	if errs == nil {
		errs = []model.ErrorEntry{}
	}

	return &Report{
		Summary: Summary{
			RunID:             r.id,
			TotalPages:        len(pages),
			MatchedPages:      matched,
			Errors:            int(r.stats.errored.Load()),
			Skipped:           int(r.stats.skipped.Load()),
			Found:             int(r.stats.found.Load()),
			Retries:           fetchStats.Retries,
			AvgResponseTimeMs: fetchStats.AvgResponseTimeMs,
			DurationMs:        r.stats.Elapsed().Milliseconds(),
			PagesPerSecond:    r.stats.PagesPerSecond(),
			Cancelled:         cancelled,
		},
		Sitemap:   doc.Entries,
		LinkTree:  doc.Tree,
		LinkStats: doc.Stats,
		Domains:   doc.Domains,
		Pages:     pages,
		Errors:    errs,
	}
}

func (c *Crawler) persistRun(ctx context.Context, r *runState, report *Report) {
	if c.store == nil {
		return
	}

	if err := c.store.Upsert(ctx, storage.CollectionRuns, r.id, report.Summary); err != nil {
		slog.Error("failed to save run", slog.String("run_id", r.id), slog.Any("err", err))
	}

	for i, e := range report.Errors {
		key := ErrorKey(r.id, i)
		if err := c.store.Upsert(ctx, storage.CollectionErrors, key, e); err != nil {
			slog.Error("failed to save error entry", slog.String("key", key), slog.Any("err", err))
			return
		}
	}
}

// ErrorKey is the storage key of the i-th error entry of a run.
func ErrorKey(runID string, i int) string {
	return fmt.Sprintf("%s-%05d", runID, i)
}
