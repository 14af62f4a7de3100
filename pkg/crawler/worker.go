package crawler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devraulu/sitescout/pkg/analysis"
	"github.com/devraulu/sitescout/pkg/classify"
	"github.com/devraulu/sitescout/pkg/embed"
	"github.com/devraulu/sitescout/pkg/fetch"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/process"
	"github.com/devraulu/sitescout/pkg/sitemap"
)

const summarizeTimeout = 30 * time.Second

var platformMedia = map[embed.Platform]model.MediaType{
	embed.YouTube:    model.MediaVideo,
	embed.Vimeo:      model.MediaVideo,
	embed.TikTok:     model.MediaVideo,
	embed.HypnoTube:  model.MediaVideo,
	embed.SoundCloud: model.MediaAudio,
}

func (c *Crawler) fetchAndProcess(ctx context.Context, r *runState, task model.Task) CrawlResult {
	res := CrawlResult{Task: task}

	if r.opts.RespectRobots && !r.robots.Allowed(ctx, task.URL) {
		slog.Info("robots.txt disallowed", slog.String("url", task.URL))
		res.Skipped = true
		return res
	}

	host := process.Host(task.URL)
	if err := r.clock.WaitFor(ctx, host); err != nil {
		res.Error = err
		return res
	}

	resp, err := r.fetcher.Fetch(ctx, task.URL)
	if err != nil {
		res.Error = err
		return res
	}

	pageURL := task.URL
	if resp.URL != task.URL {
		final, err := process.Normalize(resp.URL)
		if err == nil && final != task.URL {
			if !r.frontier.Claim(final) {
				slog.Info("redirect target already seen", slog.String("url", task.URL), slog.String("target", final))
				res.Skipped = true
				return res
			}
			pageURL = final
			host = process.Host(final)
		}
	}

	page := &model.PageRecord{
		URL:            pageURL,
		Depth:          task.Depth,
		Parent:         task.Parent,
		Host:           host,
		StatusCode:     resp.StatusCode,
		ContentType:    resp.ContentType,
		ContentLength:  len(resp.Body),
		LastModified:   resp.LastModified,
		FetchedAt:      time.Now().UTC(),
		ResponseTimeMs: resp.Elapsed.Milliseconds(),
		RunID:          r.id,
		Links:          []string{},
		Media:          []model.MediaRef{},
	}

	var ext *process.Extraction
	if isHTML(resp) {
		ext = process.Extract(resp.Body, resp.URL)
		page.Title = ext.Title
		page.Description = ext.Description
		page.Image = ext.Image
		if ext.Links != nil {
			page.Links = ext.Links
		}
		if ext.Media != nil {
			page.Media = ext.Media
		}
	} else {
		page.MediaType = mediaTypeOf(resp)
	}

	c.tagPlatform(r, page, ext)

	text := page.Title + " " + page.Description
	if ext != nil {
		text += " " + ext.Text
	}
	cls := c.classifier.Classify(classify.Input{Text: text, URL: page.URL, MediaType: page.MediaType})
	page.Relevance = cls.Score
	page.DomainMatch = cls.DomainMatch
	page.Category = cls.Category

	if page.Description == "" && c.summarizer != nil && ext != nil {
		page.Description = c.summarize(ctx, page, ext.Text)
	}

	noFollow := strings.Contains(strings.ToLower(resp.RobotsTag), "nofollow") || (ext != nil && ext.NoFollow)
	noIndex := strings.Contains(strings.ToLower(resp.RobotsTag), "noindex") || (ext != nil && ext.NoIndex)

	var allowed []string
	for _, link := range page.Links {
		if reason := r.filter.Check(link); reason != process.Allowed {
			res.Filtered++
			slog.Debug("link filtered", slog.String("url", link), slog.String("reason", string(reason)))
			continue
		}
		allowed = append(allowed, link)
	}

	if !noIndex {
		r.builder.RecordPage(*page)
	}
	r.builder.AddLinks(page.URL, allowed)

	res.Page = page
	if !noFollow {
		res.Links = allowed
	}
	return res
}

// tagPlatform fills Platform and Embed from the page URL, falling back to
// the first embeddable iframe on the page.
func (c *Crawler) tagPlatform(r *runState, page *model.PageRecord, ext *process.Extraction) {
	candidates := []string{page.URL}
	if ext != nil {
		candidates = append(candidates, ext.Iframes...)
	}

	for i, u := range candidates {
		platform, ok := embed.Detect(u)
		if !ok {
			continue
		}
		if i == 0 {
			page.Platform = string(platform)
			if page.MediaType == "" {
				page.MediaType = platformMedia[platform]
			}
		}

		markup, ok := embed.Embed(u, platform, r.opts.EmbedWidth, r.opts.EmbedHeight)
		if !ok {
			continue
		}
		if r.opts.ResponsiveEmbeds {
			markup = embed.Responsive(markup)
		}
		if page.Platform == "" {
			page.Platform = string(platform)
		}
		page.Embed = markup
		return
	}
}

func (c *Crawler) summarize(ctx context.Context, page *model.PageRecord, text string) string {
	ctx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	summary, err := c.summarizer.Summarize(ctx, analysis.Document{URL: page.URL, Title: page.Title, Text: text})
	if err != nil {
		slog.Debug("summarizer unavailable, keeping empty description", slog.String("url", page.URL), slog.Any("err", err))
		return ""
	}
	return summary
}

// discoverSitemaps queues the URLs listed in each seed host's sitemap.xml
// one level below the seed.
func (c *Crawler) discoverSitemaps(ctx context.Context, r *runState, seeds []model.Task) {
	done := make(map[string]struct{})
	for _, seed := range seeds {
		u, err := url.Parse(seed.URL)
		if err != nil {
			continue
		}
		origin := u.Scheme + "://" + u.Host
		if _, ok := done[origin]; ok {
			continue
		}
		done[origin] = struct{}{}

		sitemapURL := origin + "/sitemap.xml"
		if r.opts.RespectRobots && !r.robots.Allowed(ctx, sitemapURL) {
			continue
		}
		if err := r.clock.WaitFor(ctx, process.Host(sitemapURL)); err != nil {
			return
		}

		resp, err := r.fetcher.Fetch(ctx, sitemapURL)
		if err != nil {
			slog.Debug("no sitemap", slog.String("url", sitemapURL), slog.Any("err", err))
			continue
		}

		locs, err := sitemap.ParseURLSet(bytes.NewReader(resp.Body))
		if err != nil {
			slog.Debug("unreadable sitemap", slog.String("url", sitemapURL), slog.Any("err", err))
			continue
		}

		queued := 0
		for _, loc := range locs {
			normalized, err := process.Normalize(loc)
			if err != nil || !r.filter.Allow(normalized) {
				continue
			}
			if r.frontier.Push(model.Task{URL: normalized, Depth: seed.Depth + 1, Parent: seed.URL}) {
				queued++
			}
		}
		r.stats.found.Add(int64(queued))
		slog.Info("sitemap discovered", slog.String("url", sitemapURL), slog.Int("locations", len(locs)), slog.Int("queued", queued))
	}
}

func isHTML(resp *fetch.Response) bool {
	ct := strings.ToLower(resp.ContentType)
	if strings.Contains(ct, "html") {
		return true
	}
	if ct != "" {
		return false
	}
	return strings.HasPrefix(http.DetectContentType(resp.Body), "text/html")
}

func mediaTypeOf(resp *fetch.Response) model.MediaType {
	ct := strings.ToLower(resp.ContentType)
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return model.MediaAudio
	case strings.HasPrefix(ct, "video/"):
		return model.MediaVideo
	case strings.HasPrefix(ct, "image/"):
		return model.MediaImage
	}
	if t := process.MediaTypeOf(resp.URL); t != model.MediaOther {
		return t
	}
	return ""
}
