// Package model holds the records shared between the crawl pipeline stages
// and the persistence layer.
package model

import "time"

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaAudio MediaType = "audio"
	MediaVideo MediaType = "video"
	MediaOther MediaType = "other"
)

// Task is one unit of frontier work. URL is always normalized.
type Task struct {
	URL    string `json:"url"`
	Depth  int    `json:"depth"`
	Parent string `json:"parent,omitempty"`
}

type MediaRef struct {
	URL  string    `json:"url"`
	Type MediaType `json:"type"`
}

// PageRecord is the result of processing one successfully fetched URL.
type PageRecord struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Image          string     `json:"image,omitempty"`
	ContentLength  int        `json:"contentLength"`
	Links          []string   `json:"links"`
	Media          []MediaRef `json:"media"`
	Relevance      int        `json:"relevance"`
	DomainMatch    bool       `json:"domainMatch"`
	Category       string     `json:"category"`
	MediaType      MediaType  `json:"mediaType,omitempty"`
	Platform       string     `json:"platform,omitempty"`
	Embed          string     `json:"embed,omitempty"`
	Depth          int        `json:"depth"`
	Parent         string     `json:"parent,omitempty"`
	Host           string     `json:"host"`
	StatusCode     int        `json:"statusCode"`
	ContentType    string     `json:"contentType"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
	FetchedAt      time.Time  `json:"fetchedAt"`
	ResponseTimeMs int64      `json:"responseTimeMs"`
	RunID          string     `json:"runId,omitempty"`
}

// SitemapEntry is derived one-to-one from a PageRecord.
type SitemapEntry struct {
	Loc         string  `json:"loc"`
	LastMod     string  `json:"lastmod"`
	ChangeFreq  string  `json:"changefreq"`
	Priority    float64 `json:"priority"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Category    string  `json:"category,omitempty"`
	Relevance   int     `json:"relevance"`
}

type LinkEdge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Internal bool   `json:"internal"`
}

type ErrorEntry struct {
	URL        string    `json:"url"`
	Context    string    `json:"context"`
	Message    string    `json:"message"`
	Attempt    int       `json:"attempt,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
	RunID      string    `json:"runId,omitempty"`
}
