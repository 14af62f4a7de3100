package sitemap

import (
	"encoding/json"
	"encoding/xml"
	"io"
	"strconv"

	"github.com/devraulu/sitescout/pkg/model"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// ExportXML writes the standard sitemap protocol document.
func (b *Builder) ExportXML(w io.Writer) error {
	return WriteXML(w, b.Entries())
}

// WriteXML writes entries as a sitemap protocol urlset.
func WriteXML(w io.Writer, entries []model.SitemapEntry) error {
	set := urlSet{Xmlns: sitemapNS}
	for _, e := range entries {
		set.URLs = append(set.URLs, xmlURL{
			Loc:        e.Loc,
			LastMod:    e.LastMod,
			ChangeFreq: e.ChangeFreq,
			Priority:   strconv.FormatFloat(e.Priority, 'f', 1, 64),
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type Document struct {
	Entries []model.SitemapEntry `json:"sitemap"`
	Tree    *Node                `json:"linkTree"`
	Stats   LinkStats            `json:"linkStats"`
	Domains []DomainSummary      `json:"domains"`
}

func (b *Builder) Document() Document {
	return Document{
		Entries: b.Entries(),
		Tree:    b.Tree(),
		Stats:   b.ComputeStats(),
		Domains: b.Domains(),
	}
}

// ExportJSON writes the sitemap entries, tree, link stats and per-host
// summary as one JSON document.
func (b *Builder) ExportJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(b.Document())
}

// ParseURLSet reads the locations out of a sitemap protocol document.
func ParseURLSet(r io.Reader) ([]string, error) {
	var set urlSet
	if err := xml.NewDecoder(r).Decode(&set); err != nil {
		return nil, err
	}
	locs := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			locs = append(locs, u.Loc)
		}
	}
	return locs, nil
}
