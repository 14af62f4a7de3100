// Package classify scores page text for topical relevance and assigns a
// content category.
package classify

import (
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/devraulu/sitescout/pkg/model"
)

const (
	MaxScore         = 100
	DefaultThreshold = 10
	urlMarkerBonus   = 20
	platformBonus    = 30
)

var DefaultKeywords = map[string]int{
	"bambisleep":   50,
	"bambi sleep":  50,
	"good girl":    25,
	"bambi":        20,
	"conditioning": 20,
	"hypnosis":     15,
	"trance":       15,
	"spiral":       10,
}

var (
	hypnoPattern   = regexp.MustCompile(`(?i)hypnosis|trance`)
	audioPattern   = regexp.MustCompile(`(?i)audio|mp3`)
	videoPattern   = regexp.MustCompile(`(?i)video|mp4`)
	contentPattern = regexp.MustCompile(`(?i)story|script`)
)

type Input struct {
	Text      string
	URL       string
	MediaType model.MediaType
}

type Result struct {
	Score       int            `json:"score"`
	Category    string         `json:"category"`
	DomainMatch bool           `json:"domainMatch"`
	Matches     map[string]int `json:"matches,omitempty"`
}

type keyword struct {
	term    string
	weight  int
	pattern *regexp.Regexp
}

type Options struct {
	Keywords     map[string]int
	DomainMarker string
	Platforms    []string
	Threshold    int
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	keywords  []keyword
	marker    string
	platforms []string
	threshold int
}

func New(opts Options) *Classifier {
	if len(opts.Keywords) == 0 {
		opts.Keywords = DefaultKeywords
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}

	c := &Classifier{
		marker:    strings.ToLower(opts.DomainMarker),
		threshold: opts.Threshold,
	}
	for _, p := range opts.Platforms {
		c.platforms = append(c.platforms, strings.ToLower(p))
	}

	for term, weight := range opts.Keywords {
		if weight <= 0 || term == "" {
			continue
		}
		c.keywords = append(c.keywords, keyword{
			term:    term,
			weight:  weight,
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term)),
		})
	}
	sort.Slice(c.keywords, func(i, j int) bool { return c.keywords[i].term < c.keywords[j].term })

	return c
}

func Default() *Classifier {
	return New(Options{
		DomainMarker: "bambi",
		Platforms:    []string{"bambicloud", "hypnotube"},
	})
}

// Classify is pure: the same input always yields the same result.
func (c *Classifier) Classify(in Input) Result {
	res := Result{Matches: make(map[string]int)}

	score := 0
	for _, kw := range c.keywords {
		n := len(kw.pattern.FindAllStringIndex(in.Text, -1))
		if n == 0 {
			continue
		}
		res.Matches[kw.term] = n
		score = addCapped(score, mulCapped(n, kw.weight))
	}

	lowerURL := strings.ToLower(in.URL)
	if c.marker != "" && strings.Contains(lowerURL, c.marker) {
		score = addCapped(score, urlMarkerBonus)
	}
	if c.isPlatform(in.URL) {
		score = addCapped(score, platformBonus)
	}

	res.Score = min(max(score, 0), MaxScore)
	res.DomainMatch = res.Score >= c.threshold
	res.Category = category(in.Text, in.MediaType)
	return res
}

func (c *Classifier) isPlatform(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, p := range c.platforms {
		if strings.Contains(host, p) {
			return true
		}
	}
	return false
}

func category(text string, media model.MediaType) string {
	switch media {
	case model.MediaVideo:
		return "videos"
	case model.MediaAudio:
		return "audio"
	case model.MediaImage:
		return "images"
	}

	switch {
	case hypnoPattern.MatchString(text):
		return "hypno"
	case audioPattern.MatchString(text):
		return "audio"
	case videoPattern.MatchString(text):
		return "videos"
	case contentPattern.MatchString(text):
		return "content"
	default:
		return "content"
	}
}

func addCapped(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func mulCapped(n, w int) int {
	if n > math.MaxInt/w {
		return math.MaxInt
	}
	return n * w
}
