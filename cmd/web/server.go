package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/devraulu/sitescout/pkg/crawler"
	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/storage"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

var categories = []string{"hypno", "audio", "videos", "images", "content"}

type RunDetail struct {
	Summary crawler.Summary    `json:"summary"`
	Errors  []model.ErrorEntry `json:"errors"`
}

type Stats struct {
	Pages      int64            `json:"pages"`
	Matched    int64            `json:"matched"`
	Runs       int64            `json:"runs"`
	Errors     int64            `json:"errors"`
	Categories map[string]int64 `json:"categories"`
}

type SearchResults struct {
	Results []storage.SearchResult `json:"results"`
	Count   int                    `json:"count"`
	Query   string                 `json:"query"`
}

func newServer(store storage.Store) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /runs", handleRuns(store))
	mux.HandleFunc("GET /runs/{id}", handleRun(store))
	mux.HandleFunc("GET /pages", handlePages(store))
	mux.HandleFunc("GET /stats", handleStats(store))
	mux.HandleFunc("GET /search", handleSearch(store))
	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		slog.Info("request", slog.String("method", r.Method), slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func handleRuns(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := storage.FindAs[crawler.Summary](r.Context(), store, storage.CollectionRuns, nil, limitParam(r))
		if err != nil {
			serverError(w, "list runs", err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleRun(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		filter := storage.Filter{"runId": id}

		runs, err := storage.FindAs[crawler.Summary](r.Context(), store, storage.CollectionRuns, filter, 1)
		if err != nil {
			serverError(w, "get run", err)
			return
		}
		if len(runs) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}

		errs, err := storage.FindAs[model.ErrorEntry](r.Context(), store, storage.CollectionErrors, filter, 0)
		if err != nil {
			serverError(w, "get run errors", err)
			return
		}

		writeJSON(w, http.StatusOK, RunDetail{Summary: runs[0], Errors: errs})
	}
}

func handlePages(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := storage.Filter{}
		for _, key := range []string{"category", "host", "platform", "runId"} {
			if v := r.URL.Query().Get(key); v != "" {
				filter[key] = v
			}
		}
		if r.URL.Query().Get("matched") == "true" {
			filter["domainMatch"] = true
		}

		pages, err := storage.FindAs[model.PageRecord](r.Context(), store, storage.CollectionPages, filter, limitParam(r))
		if err != nil {
			serverError(w, "list pages", err)
			return
		}
		writeJSON(w, http.StatusOK, pages)
	}
}

func handleStats(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats := Stats{Categories: make(map[string]int64, len(categories))}

		counts := []struct {
			dst        *int64
			collection string
			filter     storage.Filter
		}{
			{&stats.Pages, storage.CollectionPages, nil},
			{&stats.Matched, storage.CollectionPages, storage.Filter{"domainMatch": true}},
			{&stats.Runs, storage.CollectionRuns, nil},
			{&stats.Errors, storage.CollectionErrors, nil},
		}
		for _, c := range counts {
			n, err := store.Count(ctx, c.collection, c.filter)
			if err != nil {
				serverError(w, "count "+c.collection, err)
				return
			}
			*c.dst = n
		}

		for _, category := range categories {
			n, err := store.Count(ctx, storage.CollectionPages, storage.Filter{"category": category})
			if err != nil {
				serverError(w, "count category", err)
				return
			}
			stats.Categories[category] = n
		}

		writeJSON(w, http.StatusOK, stats)
	}
}

func handleSearch(store storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing q"})
			return
		}

		slog.Info("search", slog.String("query", query))

		resp, err := store.Search(r.Context(), query, limitParam(r))
		if err != nil {
			slog.Error("search failed", slog.String("query", query), slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
			return
		}

		results := resp.Results
		if results == nil {
			results = []storage.SearchResult{}
		}

		slog.Info("search complete", slog.String("query", query), slog.Int("results", len(results)), slog.Int("total", resp.TotalCount))
		writeJSON(w, http.StatusOK, SearchResults{Results: results, Count: resp.TotalCount, Query: query})
	}
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}

func serverError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": op + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("err", err))
	}
}
