package process

import (
	"net/url"
	"path"
	"strings"
)

type Reason string

const (
	Allowed          Reason = ""
	ReasonScheme     Reason = "scheme"
	ReasonExtension  Reason = "extension"
	ReasonQuery      Reason = "query_params"
	ReasonTracking   Reason = "tracking_param"
	ReasonShortener  Reason = "shortener_host"
	ReasonUnparsable Reason = "unparsable"
)

var (
	defaultSkipExtensions = []string{
		".pdf", ".doc", ".docx", ".zip", ".rar", ".exe", ".dmg", ".iso", ".tar", ".gz",
		".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".woff", ".woff2", ".ttf",
	}
	defaultTrackingParams = []string{"fbclid", "gclid", "msclkid", "session", "token", "sid", "ref"}
	defaultShortenerHosts = []string{"t.co", "bit.ly", "tinyurl.com", "ow.ly", "goo.gl", "buff.ly"}
)

// Filter decides whether a discovered URL is worth queueing. Rejections are
// silent skips, not errors.
type Filter struct {
	MaxQueryParams int
	skipExt        map[string]struct{}
	tracking       map[string]struct{}
	shorteners     map[string]struct{}
}

func NewFilter(maxQueryParams int) *Filter {
	f := &Filter{
		MaxQueryParams: maxQueryParams,
		skipExt:        toSet(defaultSkipExtensions),
		tracking:       toSet(defaultTrackingParams),
		shorteners:     toSet(defaultShortenerHosts),
	}
	return f
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func (f *Filter) Check(rawURL string) Reason {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ReasonUnparsable
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return ReasonScheme
	}

	if _, ok := f.shorteners[strings.ToLower(u.Hostname())]; ok {
		return ReasonShortener
	}

	if _, ok := f.skipExt[strings.ToLower(path.Ext(u.Path))]; ok {
		return ReasonExtension
	}

	query := u.Query()
	if f.MaxQueryParams > 0 && len(query) > f.MaxQueryParams {
		return ReasonQuery
	}
	for key := range query {
		key = strings.ToLower(key)
		if strings.HasPrefix(key, "utm_") {
			return ReasonTracking
		}
		if _, ok := f.tracking[key]; ok {
			return ReasonTracking
		}
	}

	return Allowed
}

func (f *Filter) Allow(rawURL string) bool {
	return f.Check(rawURL) == Allowed
}
