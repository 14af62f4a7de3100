package crawler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	frontier "github.com/devraulu/sitescout/pkg"
	"github.com/devraulu/sitescout/pkg/analysis"
	"github.com/devraulu/sitescout/pkg/crawler"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/storage"
	"github.com/devraulu/sitescout/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() crawler.Options {
	return crawler.Options{
		MaxDepth:       5,
		MaxPages:       10,
		MaxConcurrency: 3,
		MaxRetries:     1,
		RequestTimeout: 2 * time.Second,
		RetryBaseDelay: time.Millisecond,
		RobotsTimeout:  time.Second,
		UserAgent:      "sitescout-test",
		MaxQueryParams: 5,
		RespectRobots:  true,
	}
}

func htmlPage(title string, body string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body>%s</body></html>", title, body)
}

func serve(pages map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if strings.HasSuffix(r.URL.Path, ".txt") || strings.HasSuffix(r.URL.Path, ".xml") {
			w.Header().Set("Content-Type", "text/plain")
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		fmt.Fprint(w, body)
	}))
}

func urls(report *crawler.Report) []string {
	var out []string
	for _, p := range report.Pages {
		out = append(out, p.URL)
	}
	return out
}

func TestRunCycleTerminates(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/a": htmlPage("A", `<a href="/b">b</a>`),
		"/b": htmlPage("B", `<a href="/a#top">a</a><a href="/a">a again</a>`),
	})
	defer srv.Close()

	c := crawler.New(nil, nil, nil, nil)
	report, err := c.Run(context.Background(), []string{srv.URL + "/a"}, testOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL + "/a", srv.URL + "/b"}, urls(report))
	require.Len(t, report.Sitemap, 2)
	assert.Equal(t, srv.URL+"/a", report.Sitemap[0].Loc)
	assert.Equal(t, srv.URL+"/b", report.Sitemap[1].Loc)
	assert.Equal(t, 2, report.LinkStats.InternalLinks)
	assert.Equal(t, 2, report.Summary.TotalPages)
	assert.Zero(t, report.Summary.Errors)

	run, err := c.Tracker().Get(report.Summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Counters.Crawled)
}

func TestRunRespectsMaxDepth(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/0": htmlPage("0", `<a href="/1">next</a>`),
		"/1": htmlPage("1", `<a href="/2">next</a>`),
		"/2": htmlPage("2", `<a href="/3">next</a>`),
		"/3": htmlPage("3", ``),
	})
	defer srv.Close()

	opts := testOptions()
	opts.MaxDepth = 1

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/0"}, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{srv.URL + "/0", srv.URL + "/1"}, urls(report))
	for _, p := range report.Pages {
		assert.LessOrEqual(t, p.Depth, 1)
	}
}

func TestRunRespectsMaxPages(t *testing.T) {
	t.Parallel()

	pages := map[string]string{}
	var links strings.Builder
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("/p%d", i)
		pages[path] = htmlPage(path, "")
		fmt.Fprintf(&links, `<a href="%s">%d</a>`, path, i)
	}
	pages["/"] = htmlPage("index", links.String())
	srv := serve(pages)
	defer srv.Close()

	opts := testOptions()
	opts.MaxPages = 4

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, report.Summary.TotalPages, 4)
	assert.GreaterOrEqual(t, report.Summary.TotalPages, 1)
}

func TestRunNoValidSeeds(t *testing.T) {
	t.Parallel()

	tr := tracker.New(0, 0)
	c := crawler.New(nil, tr, nil, nil)

	_, err := c.Run(context.Background(), []string{"", "not a url", "mailto:x@y.z"}, testOptions())
	require.ErrorIs(t, err, frontier.ErrNoSeeds)

	history := tr.History()
	require.Len(t, history, 1)
	assert.Equal(t, tracker.StatusError, history[0].Status)
}

func TestRunRecordsErrorsAndContinues(t *testing.T) {
	t.Parallel()

	var flaky atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, htmlPage("root", `<a href="/missing">x</a><a href="/flaky">y</a><a href="/down">z</a>`))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flaky.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, htmlPage("flaky", ""))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, testOptions())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/flaky"}, urls(report))
	assert.Equal(t, 2, report.Summary.Errors)
	assert.EqualValues(t, 2, report.Summary.Retries)

	contexts := map[string]string{}
	attempts := map[string]int{}
	for _, e := range report.Errors {
		contexts[e.URL] = e.Context
		attempts[e.URL] = e.Attempt
	}
	assert.Equal(t, "http_status", contexts[srv.URL+"/missing"])
	assert.Equal(t, "retry_exhausted_status", contexts[srv.URL+"/down"])
	assert.Equal(t, 1, attempts[srv.URL+"/missing"])
	assert.Equal(t, testOptions().MaxRetries+1, attempts[srv.URL+"/down"])
}

func TestRunErrorRecordsAttempts(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxRetries = 2
	opts.RespectRobots = false

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "retry_exhausted_status", report.Errors[0].Context)
	assert.Equal(t, 3, report.Errors[0].Attempt)
	assert.Equal(t, report.Summary.RunID, report.Errors[0].RunID)
}

func TestRunRedirectTargetCrawledOnce(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/self", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("S", `<a href="/old">old</a><a href="/new">new</a><a href="/moved">moved</a>`))
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("N", `<a href="/landing">landing</a>`))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusFound)
	})
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, htmlPage("L", ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/self"}, testOptions())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{srv.URL + "/self", srv.URL + "/new", srv.URL + "/landing"}, urls(report))

	var locs []string
	for _, e := range report.Sitemap {
		locs = append(locs, e.Loc)
	}
	assert.ElementsMatch(t, []string{srv.URL + "/self", srv.URL + "/new", srv.URL + "/landing"}, locs)
	assert.Zero(t, report.Summary.Errors)
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		var links strings.Builder
		for i := 0; i < 40; i++ {
			fmt.Fprintf(&links, `<a href="/p%d">%d</a>`, i, i)
		}
		fmt.Fprint(w, htmlPage(r.URL.Path, links.String()))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxConcurrency = 3
	opts.MaxPages = 30
	opts.RespectRobots = false

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)

	assert.Equal(t, 30, report.Summary.TotalPages)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunSpacesSameHostRequests(t *testing.T) {
	t.Parallel()

	const delay = 60 * time.Millisecond

	var (
		mu     sync.Mutex
		starts []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		fmt.Fprint(w, htmlPage(r.URL.Path, `<a href="/a">a</a><a href="/b">b</a><a href="/c">c</a><a href="/d">d</a>`))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.MaxConcurrency = 4
	opts.CrawlDelay = delay
	opts.RespectRobots = false

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)
	require.Equal(t, 5, report.Summary.TotalPages)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, starts, 5)
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), delay-20*time.Millisecond, "gap %d", i)
	}
}

func TestRunHonoursRobots(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/robots.txt": "User-agent: *\nDisallow: /private\n",
		"/":           htmlPage("root", `<a href="/private/x">p</a><a href="/public">q</a>`),
		"/private/x":  htmlPage("private", ""),
		"/public":     htmlPage("public", ""),
	})
	defer srv.Close()

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, testOptions())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/public"}, urls(report))
	assert.GreaterOrEqual(t, report.Summary.Skipped, 1)
}

func TestRunFiltersLinks(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/":   htmlPage("root", `<a href="/doc.pdf">pdf</a><a href="/x?utm_source=a">tracked</a><a href="/ok">ok</a>`),
		"/ok": htmlPage("ok", ""),
	})
	defer srv.Close()

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, testOptions())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/ok"}, urls(report))
	assert.Equal(t, 2, report.Summary.Skipped)
}

func TestRunClassifiesAndEmbeds(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/": htmlPage("Bambisleep session", `<p>deep trance</p><iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>`),
	})
	defer srv.Close()

	opts := testOptions()
	opts.MaxDepth = 0
	opts.ResponsiveEmbeds = true

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)
	require.Len(t, report.Pages, 1)

	page := report.Pages[0]
	assert.True(t, page.DomainMatch)
	assert.GreaterOrEqual(t, page.Relevance, 85)
	assert.Equal(t, "hypno", page.Category)
	assert.Equal(t, "youtube", page.Platform)
	assert.Contains(t, page.Embed, "https://www.youtube.com/embed/dQw4w9WgXcQ")
	assert.Contains(t, page.Embed, "padding-bottom: 56.25%")
	assert.Equal(t, 1, report.Summary.MatchedPages)
}

type fakeSummarizer struct {
	calls atomic.Int32
}

func (f *fakeSummarizer) Summarize(ctx context.Context, doc analysis.Document) (string, error) {
	f.calls.Add(1)
	return "summary of " + doc.Title, nil
}

func TestRunPersistsAndSummarizes(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{
		"/":      htmlPage("Home", ""),
		"/about": `<html><head><title>About</title><meta name="description" content="already described"></head><body></body></html>`,
	})
	defer srv.Close()

	store := storage.NewMemoryStorage()
	sum := &fakeSummarizer{}
	c := crawler.New(store, nil, nil, sum)

	report, err := c.Run(context.Background(), []string{srv.URL + "/", srv.URL + "/about"}, testOptions())
	require.NoError(t, err)
	require.Len(t, report.Pages, 2)

	ctx := context.Background()
	n, err := store.Count(ctx, storage.CollectionPages, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	home, err := storage.FindAs[model.PageRecord](ctx, store, storage.CollectionPages, storage.Filter{"url": srv.URL + "/"}, 0)
	require.NoError(t, err)
	require.Len(t, home, 1)
	assert.Equal(t, "summary of Home", home[0].Description)

	about, err := storage.FindAs[model.PageRecord](ctx, store, storage.CollectionPages, storage.Filter{"url": srv.URL + "/about"}, 0)
	require.NoError(t, err)
	require.Len(t, about, 1)
	assert.Equal(t, "already described", about[0].Description)

	assert.EqualValues(t, 1, sum.calls.Load())

	runs, err := store.Count(ctx, storage.CollectionRuns, storage.Filter{"runId": report.Summary.RunID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, runs)
}

func TestRunDiscoversSitemap(t *testing.T) {
	t.Parallel()

	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, htmlPage("root", ""))
		case "/hidden":
			fmt.Fprint(w, htmlPage("hidden", ""))
		case "/sitemap.xml":
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"><url><loc>%s/hidden</loc></url></urlset>`, srvURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	opts := testOptions()
	opts.DiscoverSitemaps = true

	report, err := crawler.New(nil, nil, nil, nil).Run(context.Background(), []string{srv.URL + "/"}, opts)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{srv.URL + "/", srv.URL + "/hidden"}, urls(report))
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	srv := serve(map[string]string{"/": htmlPage("root", "")})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := crawler.New(nil, nil, nil, nil).Run(ctx, []string{srv.URL + "/"}, testOptions())
	require.NoError(t, err)
	assert.True(t, report.Summary.Cancelled)
	assert.Zero(t, report.Summary.TotalPages)
}
