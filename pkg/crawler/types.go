package crawler

import (
	"time"

	"github.com/devraulu/sitescout/pkg/config"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/sitemap"
)

// Options bound a single run.
type Options struct {
	MaxDepth         int           `json:"maxDepth"`
	MaxPages         int           `json:"maxPages"`
	MaxConcurrency   int           `json:"maxConcurrency"`
	CrawlDelay       time.Duration `json:"crawlDelay"`
	MaxRetries       int           `json:"maxRetries"`
	RequestTimeout   time.Duration `json:"requestTimeout"`
	RetryBaseDelay   time.Duration `json:"retryBaseDelay"`
	RobotsTimeout    time.Duration `json:"robotsTimeout"`
	UserAgent        string        `json:"userAgent"`
	MaxQueryParams   int           `json:"maxQueryParams"`
	MaxBodyBytes     int64         `json:"maxBodyBytes"`
	RespectRobots    bool          `json:"respectRobots"`
	DiscoverSitemaps bool          `json:"discoverSitemaps"`
	EmbedWidth       int           `json:"embedWidth"`
	EmbedHeight      int           `json:"embedHeight"`
	ResponsiveEmbeds bool          `json:"responsiveEmbeds"`
}

func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxDepth:         cfg.Crawler.MaxDepth,
		MaxPages:         cfg.Crawler.MaxPages,
		MaxConcurrency:   cfg.Crawler.Workers,
		CrawlDelay:       cfg.Politeness.GetDelay(),
		MaxRetries:       cfg.Crawler.MaxRetries,
		RequestTimeout:   cfg.Crawler.GetRequestTimeout(),
		RetryBaseDelay:   cfg.Crawler.GetRetryBaseDelay(),
		RobotsTimeout:    cfg.Politeness.GetRobotsTimeout(),
		UserAgent:        cfg.Crawler.UserAgent,
		MaxQueryParams:   cfg.Crawler.MaxQueryParams,
		MaxBodyBytes:     cfg.Crawler.MaxBodyBytes,
		RespectRobots:    cfg.Crawler.RespectRobots,
		DiscoverSitemaps: cfg.Crawler.DiscoverSitemaps,
		EmbedWidth:       cfg.Embed.Width,
		EmbedHeight:      cfg.Embed.Height,
		ResponsiveEmbeds: cfg.Embed.Responsive,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = 1
	}
	if o.MaxPages < 1 {
		o.MaxPages = 1
	}
	if o.UserAgent == "" {
		o.UserAgent = "sitescout/1.0"
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.RobotsTimeout <= 0 {
		o.RobotsTimeout = 5 * time.Second
	}
	return o
}

type Summary struct {
	RunID             string  `json:"runId"`
	TotalPages        int     `json:"totalPages"`
	MatchedPages      int     `json:"matchedPages"`
	Errors            int     `json:"errors"`
	Skipped           int     `json:"skipped"`
	Found             int     `json:"found"`
	Retries           int64   `json:"retries"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
	DurationMs        int64   `json:"durationMs"`
	PagesPerSecond    float64 `json:"pagesPerSecond"`
	Cancelled         bool    `json:"cancelled,omitempty"`
}

type Report struct {
	Summary   Summary                 `json:"summary"`
	Sitemap   []model.SitemapEntry    `json:"sitemap"`
	LinkTree  *sitemap.Node           `json:"linkTree"`
	LinkStats sitemap.LinkStats       `json:"linkStats"`
	Domains   []sitemap.DomainSummary `json:"domains"`
	Pages     []model.PageRecord      `json:"pages"`
	Errors    []model.ErrorEntry      `json:"errors"`
}

// CrawlResult is what a worker produces for one task.
type CrawlResult struct {
	Task     model.Task
	Page     *model.PageRecord
	Links    []string
	Filtered int
	Error    error
	Skipped  bool
}
