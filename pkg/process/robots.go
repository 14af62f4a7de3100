package process

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/benjaminestes/robots"
)

// RobotsChecker caches robots.txt per origin for the lifetime of one run.
// A missing or unreadable robots.txt allows everything.
type RobotsChecker struct {
	userAgent string
	client    *http.Client

	mu    sync.Mutex
	cache map[string]*robots.Robots
}

func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	return &RobotsChecker{
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		cache:     make(map[string]*robots.Robots),
	}
}

func (c *RobotsChecker) Allowed(ctx context.Context, url string) bool {
	r := c.lookup(ctx, url)
	if r == nil {
		return true
	}
	return r.Test(c.userAgent, url)
}

func (c *RobotsChecker) lookup(ctx context.Context, url string) (r *robots.Robots) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("panic in robots.txt parsing, assuming allowed", slog.String("url", url), slog.Any("panic", p))
			r = nil
		}
	}()

	robotsURL, err := robots.Locate(url)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	cached, ok := c.cache[robotsURL]
	c.mu.Unlock()
	if ok {
		return cached
	}

	r, err = c.fetch(ctx, robotsURL)
	if err != nil {
		slog.Warn("failed to fetch robots.txt", slog.String("url", robotsURL), slog.Any("err", err))
		r = nil
	}

	c.mu.Lock()
	c.cache[robotsURL] = r
	c.mu.Unlock()
	return r
}

func (c *RobotsChecker) fetch(ctx context.Context, url string) (*robots.Robots, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
	if err != nil {
		return nil, err
	}

	slog.Debug("robots.txt response",
		slog.String("url", url),
		slog.Int("status_code", resp.StatusCode),
		slog.Int("body_length", len(body)),
	)

	return robots.From(resp.StatusCode, bytes.NewReader(body))
}
