// Package embed recognises media platforms from URLs and renders iframe
// markup for the ones that support embedding.
package embed

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

type Platform string

const (
	YouTube    Platform = "youtube"
	Vimeo      Platform = "vimeo"
	TikTok     Platform = "tiktok"
	Instagram  Platform = "instagram"
	Twitter    Platform = "twitter"
	SoundCloud Platform = "soundcloud"
	Reddit     Platform = "reddit"
	Patreon    Platform = "patreon"
	Discord    Platform = "discord"
	BambiCloud Platform = "bambicloud"
	HypnoTube  Platform = "hypnotube"
)

const (
	DefaultWidth  = 560
	DefaultHeight = 315

	iframeTemplate = `<iframe width="{width}" height="{height}" src="{src}" frameborder="0" allowfullscreen></iframe>`
)

type platformDef struct {
	name  Platform
	hosts *regexp.Regexp
	id    *regexp.Regexp
	src   string
	// escape the whole URL instead of a captured id
	wholeURL bool
}

// Checked in order, first match wins.
var platforms = []platformDef{
	{
		name:  YouTube,
		hosts: regexp.MustCompile(`(?i)(^|\.)(youtube\.com|youtu\.be)$`),
		id:    regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`),
		src:   "https://www.youtube.com/embed/{id}",
	},
	{
		name:  Vimeo,
		hosts: regexp.MustCompile(`(?i)(^|\.)vimeo\.com$`),
		id:    regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`),
		src:   "https://player.vimeo.com/video/{id}",
	},
	{
		name:  TikTok,
		hosts: regexp.MustCompile(`(?i)(^|\.)tiktok\.com$`),
		id:    regexp.MustCompile(`tiktok\.com/@[^/]+/video/(\d+)`),
		src:   "https://www.tiktok.com/embed/v2/{id}",
	},
	{
		name:  Instagram,
		hosts: regexp.MustCompile(`(?i)(^|\.)instagram\.com$`),
		id:    regexp.MustCompile(`instagram\.com/(?:p|reel)/([A-Za-z0-9_-]+)`),
		src:   "https://www.instagram.com/p/{id}/embed/",
	},
	{
		name:  Twitter,
		hosts: regexp.MustCompile(`(?i)(^|\.)(twitter\.com|x\.com)$`),
		id:    regexp.MustCompile(`(?:twitter|x)\.com/[^/]+/status/(\d+)`),
		src:   "https://platform.twitter.com/embed/Tweet.html?id={id}",
	},
	{
		name:     SoundCloud,
		hosts:    regexp.MustCompile(`(?i)(^|\.)soundcloud\.com$`),
		id:       regexp.MustCompile(`soundcloud\.com/([^/]+)/([^/?]+)`),
		src:      "https://w.soundcloud.com/player/?url={id}",
		wholeURL: true,
	},
	{name: Reddit, hosts: regexp.MustCompile(`(?i)(^|\.)(reddit\.com|redd\.it)$`)},
	{name: Patreon, hosts: regexp.MustCompile(`(?i)(^|\.)patreon\.com$`)},
	{name: Discord, hosts: regexp.MustCompile(`(?i)(^|\.)(discord\.com|discord\.gg|discordapp\.com)$`)},
	{name: BambiCloud, hosts: regexp.MustCompile(`(?i)bambicloud`)},
	{name: HypnoTube, hosts: regexp.MustCompile(`(?i)hypnotube`)},
}

var (
	widthAttr  = regexp.MustCompile(`width="\d+"`)
	heightAttr = regexp.MustCompile(`height="\d+"`)
)

// Detect returns the platform hosting rawURL.
func Detect(rawURL string) (Platform, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}

	for _, p := range platforms {
		if p.hosts.MatchString(host) {
			return p.name, true
		}
	}
	return "", false
}

// Embed renders iframe markup for rawURL on platform. Non-positive sizes fall
// back to the defaults. It reports false when the platform has no template or
// the content identifier cannot be extracted.
func Embed(rawURL string, platform Platform, width, height int) (string, bool) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	for _, p := range platforms {
		if p.name != platform {
			continue
		}
		if p.src == "" {
			return "", false
		}

		m := p.id.FindStringSubmatch(rawURL)
		if m == nil {
			return "", false
		}

		id := m[1]
		if p.wholeURL {
			id = url.QueryEscape(rawURL)
		}

		src := strings.ReplaceAll(p.src, "{id}", id)
		markup := strings.NewReplacer(
			"{width}", strconv.Itoa(width),
			"{height}", strconv.Itoa(height),
			"{src}", src,
		).Replace(iframeTemplate)
		return markup, true
	}

	return "", false
}

// Responsive wraps markup in a 16:9 container and stretches any fixed
// width/height attributes to fill it.
func Responsive(markup string) string {
	inner := widthAttr.ReplaceAllString(markup, `width="100%"`)
	inner = heightAttr.ReplaceAllString(inner, `height="100%"`)
	return `<div style="position: relative; padding-bottom: 56.25%; height: 0; overflow: hidden;">` +
		`<div style="position: absolute; top: 0; left: 0; width: 100%; height: 100%;">` +
		inner +
		`</div></div>`
}
