package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	CollectionPages  = "pages"
	CollectionRuns   = "runs"
	CollectionErrors = "errors"
)

var ErrEmptyKey = errors.New("storage: empty key")

// Filter matches documents whose top-level fields equal the given values.
type Filter map[string]any

type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"totalCount"`
}

// Store is a keyed document store. Records are serialized as JSON; Find
// returns them raw so callers pick the type.
type Store interface {
	Upsert(ctx context.Context, collection, key string, record any) error
	Find(ctx context.Context, collection string, filter Filter, limit int) ([]json.RawMessage, error)
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
	Search(ctx context.Context, query string, limit int) (SearchResponse, error)
	Close() error
}

// FindAs runs Find and decodes every document into T, rejecting documents
// that carry fields T does not know about.
func FindAs[T any](ctx context.Context, s Store, collection string, filter Filter, limit int) ([]T, error) {
	docs, err := s.Find(ctx, collection, filter, limit)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(docs))
	for i, doc := range docs {
		var v T
		dec := json.NewDecoder(bytes.NewReader(doc))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s document %d: %w", collection, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// normalizeFilter round-trips the filter through JSON so its values compare
// equal to decoded documents.
func normalizeFilter(f Filter) (map[string]any, []byte, error) {
	if len(f) == 0 {
		return nil, []byte("{}"), nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, nil, fmt.Errorf("encode filter: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("decode filter: %w", err)
	}
	return m, raw, nil
}
