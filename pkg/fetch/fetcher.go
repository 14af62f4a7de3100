// Package fetch retrieves pages over HTTP with bounded retries and manual
// redirect handling.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"golang.org/x/net/html/charset"
)

type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	MaxBodyBytes int64

	// Wait, if set, runs before each redirect hop with the hop's URL.
	Wait func(ctx context.Context, rawURL string) error
}

type Response struct {
	URL          string
	StatusCode   int
	ContentType  string
	Body         []byte
	LastModified *time.Time
	RobotsTag    string
	Elapsed      time.Duration
	Attempts     int

	location   string
	retryAfter string
}

type Fetcher struct {
	cfg    Config
	client *http.Client
	stats  *Stats
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, stats *Stats) *Fetcher {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		stats: stats,
		sleep: sleepCtx,
	}
}

func (f *Fetcher) Stats() *Stats {
	return f.stats
}

// Fetch retrieves rawURL. 2xx succeeds, 3xx is followed, other 4xx fails
// immediately and 5xx/429/network errors are retried up to MaxRetries times
// with a linear backoff of BaseDelay*attempt.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	current := rawURL
	var hops []string
	retries := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}

		resp, err := f.do(ctx, current)

		var failure error
		var retryAfter time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
			}
			failure = &NetworkError{URL: current, Err: err}

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			resp.Attempts = retries + 1
			return resp, nil

		case resp.StatusCode >= 300 && resp.StatusCode < 400:
			next, ok := f.nextHop(current, resp)
			if !ok {
				return nil, &HTTPStatusError{URL: current, StatusCode: resp.StatusCode, Attempt: retries + 1}
			}
			hops = append(hops, current)
			if len(hops) > f.cfg.MaxRetries || slices.Contains(hops, next) {
				return nil, &RedirectLoopError{URL: rawURL, Hops: hops}
			}
			slog.Debug("following redirect", slog.String("from", current), slog.String("to", next))
			current = next
			if f.cfg.Wait != nil {
				if err := f.cfg.Wait(ctx, current); err != nil {
					return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
				}
			}
			continue

		default:
			statusErr := &HTTPStatusError{URL: current, StatusCode: resp.StatusCode, Attempt: retries + 1}
			if !statusErr.Retryable() {
				return nil, statusErr
			}
			failure = statusErr
			retryAfter = parseRetryAfter(resp.retryAfter)
		}

		if retries >= f.cfg.MaxRetries {
			return nil, &RetryExhaustedError{URL: rawURL, Attempts: retries + 1, Err: failure}
		}
		retries++
		f.stats.AddRetry()

		delay := max(f.cfg.BaseDelay*time.Duration(retries), retryAfter)
		slog.Info("retrying fetch",
			slog.String("url", current),
			slog.Int("attempt", retries),
			slog.Duration("delay", delay),
			slog.Any("err", failure),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}
}

// do performs one request. Bodies of non-2xx responses are discarded.
func (f *Fetcher) do(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		URL:         target,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		RobotsTag:   resp.Header.Get("X-Robots-Tag"),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.location = resp.Header.Get("Location")
		out.retryAfter = resp.Header.Get("Retry-After")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		f.stats.Observe(time.Since(start))
		return out, nil
	}

	body := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	utf8Reader, err := charset.NewReader(body, out.ContentType)
	if err != nil {
		utf8Reader = body
	}

	out.Body, err = io.ReadAll(utf8Reader)
	if err != nil {
		return nil, err
	}

	out.Elapsed = time.Since(start)
	f.stats.Observe(out.Elapsed)

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			out.LastModified = &t
		}
	}

	return out, nil
}

func (f *Fetcher) nextHop(current string, resp *Response) (string, bool) {
	location := resp.location
	if location == "" {
		return "", false
	}
	base, err := url.Parse(current)
	if err != nil {
		return "", false
	}
	next, err := base.Parse(location)
	if err != nil {
		return "", false
	}
	return next.String(), true
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
