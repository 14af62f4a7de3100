package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
)

type MemoryStorage struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{collections: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStorage) Upsert(ctx context.Context, collection, key string, record any) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string]json.RawMessage)
		s.collections[collection] = c
	}
	c[key] = data
	return nil
}

func (s *MemoryStorage) Find(ctx context.Context, collection string, filter Filter, limit int) ([]json.RawMessage, error) {
	want, _, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.collections[collection]
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []json.RawMessage
	for _, k := range keys {
		ok, err := matches(c[k], want)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, append(json.RawMessage(nil), c[k]...))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStorage) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	docs, err := s.Find(ctx, collection, filter, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Search ranks pages by how often the query occurs in title and description.
func (s *MemoryStorage) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return SearchResponse{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []SearchResult
	for _, doc := range s.collections[CollectionPages] {
		var page struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(doc, &page); err != nil {
			return SearchResponse{}, err
		}
		hits := strings.Count(strings.ToLower(page.Title+" "+page.Description), q)
		if hits == 0 {
			continue
		}
		results = append(results, SearchResult{
			URL:     page.URL,
			Title:   page.Title,
			Snippet: page.Description,
			Rank:    float64(hits),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Rank != results[j].Rank {
			return results[i].Rank > results[j].Rank
		}
		return results[i].URL < results[j].URL
	})

	resp := SearchResponse{TotalCount: len(results)}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	resp.Results = results
	return resp, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}

func matches(doc json.RawMessage, want map[string]any) (bool, error) {
	if len(want) == 0 {
		return true, nil
	}
	var got map[string]any
	if err := json.Unmarshal(doc, &got); err != nil {
		return false, err
	}
	for k, v := range want {
		if !reflect.DeepEqual(got[k], v) {
			return false, nil
		}
	}
	return true, nil
}
