package process

import (
	"bytes"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/go-shiori/go-readability"
)

var (
	audioExt = []string{".mp3", ".wav", ".m4a", ".aac", ".ogg", ".flac"}
	videoExt = []string{".mp4", ".webm", ".mov", ".avi", ".mkv", ".wmv"}
	imageExt = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}
)

type Extraction struct {
	Links       []string
	Media       []model.MediaRef
	Iframes     []string
	Title       string
	Description string
	Image       string
	Text        string
	NoFollow    bool
	NoIndex     bool
}

// Extract pulls links, media and metadata out of an HTML document. It never
// fails: malformed markup yields whatever could be recovered.
func Extract(body []byte, baseURL string) *Extraction {
	res := &Extraction{}

	base, err := url.Parse(baseURL)
	if err != nil {
		slog.Debug("extract: bad base url", slog.String("url", baseURL), slog.Any("err", err))
		return res
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Debug("extract: parse failed", slog.String("url", baseURL), slog.Any("err", err))
		return res
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if newBase, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = newBase
		}
	}

	res.Links = extractLinks(doc, base)
	res.Media = extractMedia(doc, base)
	doc.Find("iframe[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if resolved := resolve(src, base); resolved != "" {
			res.Iframes = append(res.Iframes, resolved)
		}
	})

	res.Title = firstNonEmpty(
		metaContent(doc, `meta[property="og:title"]`),
		strings.TrimSpace(doc.Find("title").First().Text()),
	)
	res.Description = firstNonEmpty(
		metaContent(doc, `meta[property="og:description"]`),
		metaContent(doc, `meta[name="description"]`),
	)
	if img := metaContent(doc, `meta[property="og:image"]`); img != "" {
		res.Image = resolve(img, base)
	}

	robotsMeta := strings.ToLower(metaContent(doc, `meta[name="robots"]`))
	res.NoFollow = strings.Contains(robotsMeta, "nofollow") || strings.Contains(robotsMeta, "none")
	res.NoIndex = strings.Contains(robotsMeta, "noindex") || strings.Contains(robotsMeta, "none")

	if len(doc.Nodes) > 0 {
		res.Text = TextOf(doc.Nodes[0])
	}

	if res.Description == "" {
		res.Description = excerpt(body, base)
	}

	return res
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href], link[href], iframe[src], script[src]").Each(func(_ int, s *goquery.Selection) {
		ref, ok := s.Attr("href")
		if !ok {
			ref, _ = s.Attr("src")
		}

		resolved := resolve(ref, base)
		if resolved == "" {
			return
		}
		normalized, err := Normalize(resolved)
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		links = append(links, normalized)
	})

	return links
}

func extractMedia(doc *goquery.Document, base *url.URL) []model.MediaRef {
	seen := make(map[string]struct{})
	var media []model.MediaRef

	doc.Find("img[src], audio[src], video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		resolved := resolve(src, base)
		if resolved == "" {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}

		kind := MediaTypeOf(resolved)
		if kind == model.MediaOther {
			switch goquery.NodeName(s) {
			case "img":
				kind = model.MediaImage
			case "audio":
				kind = model.MediaAudio
			case "video":
				kind = model.MediaVideo
			}
		}
		media = append(media, model.MediaRef{URL: resolved, Type: kind})
	})

	return media
}

// MediaTypeOf classifies a URL by its path extension.
func MediaTypeOf(rawURL string) model.MediaType {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.MediaOther
	}
	ext := strings.ToLower(path.Ext(u.Path))

	switch {
	case slices.Contains(audioExt, ext):
		return model.MediaAudio
	case slices.Contains(videoExt, ext):
		return model.MediaVideo
	case slices.Contains(imageExt, ext):
		return model.MediaImage
	default:
		return model.MediaOther
	}
}

func resolve(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return ""
	}

	lower := strings.ToLower(ref)
	for _, prefix := range []string{"mailto:", "javascript:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}

	abs := base.ResolveReference(u)

	scheme := strings.ToLower(abs.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String()
}

func excerpt(body []byte, base *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), base)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(article.Excerpt)
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
