// Package sitemap accumulates crawled pages into a sitemap, a host/path
// tree and a link graph.
package sitemap

import (
	"math"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/process"
)

const HubThreshold = 10

type page struct {
	entry       model.SitemapEntry
	host        string
	depth       int
	domainMatch bool
}

// Builder is safe for concurrent use by crawl workers.
type Builder struct {
	mu       sync.Mutex
	pages    map[string]*page
	outbound map[string][]string
	inbound  map[string][]string
	edges    map[[2]string]struct{}
	nodes    map[string]struct{}
}

func NewBuilder() *Builder {
	return &Builder{
		pages:    make(map[string]*page),
		outbound: make(map[string][]string),
		inbound:  make(map[string][]string),
		edges:    make(map[[2]string]struct{}),
		nodes:    make(map[string]struct{}),
	}
}

// RecordPage adds or replaces the sitemap entry for rec.URL.
func (b *Builder) RecordPage(rec model.PageRecord) {
	entry := EntryFor(rec)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.pages[rec.URL] = &page{
		entry:       entry,
		host:        process.Host(rec.URL),
		depth:       rec.Depth,
		domainMatch: rec.DomainMatch,
	}
	b.nodes[rec.URL] = struct{}{}
}

// AddLinks registers directed edges from source to each target. Repeated
// edges are ignored; a page linking to itself gets a self-edge.
func (b *Builder) AddLinks(source string, targets []string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nodes[source] = struct{}{}
	for _, target := range targets {
		key := [2]string{source, target}
		if _, ok := b.edges[key]; ok {
			continue
		}
		b.edges[key] = struct{}{}
		b.nodes[target] = struct{}{}
		b.outbound[source] = append(b.outbound[source], target)
		b.inbound[target] = append(b.inbound[target], source)
	}
}

func (b *Builder) Outbound(u string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.outbound[u]...)
}

func (b *Builder) Inbound(u string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.inbound[u]...)
}

func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pages)
}

// Entries returns the sitemap entries sorted by location.
func (b *Builder) Entries() []model.SitemapEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := make([]model.SitemapEntry, 0, len(b.pages))
	for _, p := range b.pages {
		entries = append(entries, p.entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Loc < entries[j].Loc })
	return entries
}

// Edges returns every link edge sorted by source then target.
func (b *Builder) Edges() []model.LinkEdge {
	b.mu.Lock()
	defer b.mu.Unlock()

	edges := make([]model.LinkEdge, 0, len(b.edges))
	for key := range b.edges {
		edges = append(edges, model.LinkEdge{
			Source:   key[0],
			Target:   key[1],
			Internal: internal(key[0], key[1]),
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
	return edges
}

type Hub struct {
	URL      string `json:"url"`
	Outbound int    `json:"outbound"`
}

type LinkStats struct {
	TotalNodes        int      `json:"totalNodes"`
	InternalLinks     int      `json:"internalLinks"`
	ExternalLinks     int      `json:"externalLinks"`
	Orphans           []string `json:"orphans"`
	Hubs              []Hub    `json:"hubs"`
	ConnectivityScore float64  `json:"connectivityScore"`
}

// ComputeStats summarises the link graph. Orphans are recorded pages with no
// inbound links; hubs have more than HubThreshold outbound links.
func (b *Builder) ComputeStats() LinkStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := LinkStats{
		TotalNodes: len(b.nodes),
		Orphans:    []string{},
		Hubs:       []Hub{},
	}

	for key := range b.edges {
		if internal(key[0], key[1]) {
			stats.InternalLinks++
		} else {
			stats.ExternalLinks++
		}
	}

	for u := range b.pages {
		if len(b.inbound[u]) == 0 {
			stats.Orphans = append(stats.Orphans, u)
		}
	}
	sort.Strings(stats.Orphans)

	for u, targets := range b.outbound {
		if len(targets) > HubThreshold {
			stats.Hubs = append(stats.Hubs, Hub{URL: u, Outbound: len(targets)})
		}
	}
	sort.Slice(stats.Hubs, func(i, j int) bool {
		if stats.Hubs[i].Outbound != stats.Hubs[j].Outbound {
			return stats.Hubs[i].Outbound > stats.Hubs[j].Outbound
		}
		return stats.Hubs[i].URL < stats.Hubs[j].URL
	})

	if stats.TotalNodes > 0 {
		score := float64(stats.InternalLinks) / float64(stats.TotalNodes) * 100
		stats.ConnectivityScore = math.Round(score*100) / 100
	}

	return stats
}

type DomainSummary struct {
	Host         string         `json:"host"`
	Pages        int            `json:"pages"`
	Matched      int            `json:"matched"`
	AvgRelevance float64        `json:"avgRelevance"`
	Categories   map[string]int `json:"categories"`
}

// Domains groups recorded pages by host, busiest first.
func (b *Builder) Domains() []DomainSummary {
	b.mu.Lock()
	defer b.mu.Unlock()

	byHost := make(map[string]*DomainSummary)
	for _, p := range b.pages {
		d, ok := byHost[p.host]
		if !ok {
			d = &DomainSummary{Host: p.host, Categories: make(map[string]int)}
			byHost[p.host] = d
		}
		d.Pages++
		if p.domainMatch {
			d.Matched++
		}
		d.AvgRelevance += (float64(p.entry.Relevance) - d.AvgRelevance) / float64(d.Pages)
		if p.entry.Category != "" {
			d.Categories[p.entry.Category]++
		}
	}

	out := make([]DomainSummary, 0, len(byHost))
	for _, d := range byHost {
		d.AvgRelevance = math.Round(d.AvgRelevance*100) / 100
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pages != out[j].Pages {
			return out[i].Pages > out[j].Pages
		}
		return out[i].Host < out[j].Host
	})
	return out
}

// EntryFor derives the sitemap entry for a page record.
func EntryFor(rec model.PageRecord) model.SitemapEntry {
	lastMod := rec.FetchedAt
	if rec.LastModified != nil {
		lastMod = *rec.LastModified
	}
	if lastMod.IsZero() {
		lastMod = time.Now()
	}

	return model.SitemapEntry{
		Loc:         rec.URL,
		LastMod:     lastMod.UTC().Format("2006-01-02"),
		ChangeFreq:  changeFreq(rec),
		Priority:    priority(rec),
		Title:       rec.Title,
		Description: rec.Description,
		Category:    rec.Category,
		Relevance:   rec.Relevance,
	}
}

func priority(rec model.PageRecord) float64 {
	p := 1.0 - 0.2*float64(rec.Depth)
	if rec.DomainMatch {
		p += 0.1
	}
	p = math.Max(0.1, math.Min(1.0, p))
	return math.Round(p*10) / 10
}

func changeFreq(rec model.PageRecord) string {
	switch {
	case rec.Depth == 0:
		return "daily"
	case rec.Category == "videos", rec.Category == "audio", rec.Category == "images":
		return "monthly"
	default:
		return "weekly"
	}
}

func internal(source, target string) bool {
	return process.SameSite(process.Host(source), process.Host(target))
}

func pathSegments(u *url.URL) []string {
	var segs []string
	for _, s := range strings.Split(u.EscapedPath(), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	if u.RawQuery != "" {
		if len(segs) == 0 {
			segs = append(segs, "?"+u.RawQuery)
		} else {
			segs[len(segs)-1] += "?" + u.RawQuery
		}
	}
	return segs
}
