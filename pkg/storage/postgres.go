package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// PostgresStorage keeps every collection in one JSONB table keyed by
// (collection, key). Filters use JSONB containment.
type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Upsert(ctx context.Context, collection, key string, record any) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (collection, key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		collection, key, string(data),
	)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, key, err)
	}

	slog.Debug("upserted record", slog.String("collection", collection), slog.String("key", key))
	return nil
}

func (s *PostgresStorage) Find(ctx context.Context, collection string, filter Filter, limit int) ([]json.RawMessage, error) {
	_, raw, err := normalizeFilter(filter)
	if err != nil {
		return nil, err
	}

	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT data
		FROM records
		WHERE collection = $1 AND data @> $2::jsonb
		ORDER BY key
		LIMIT $3`,
		collection, string(raw), lim,
	)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		out = append(out, json.RawMessage(data))
	}
	return out, rows.Err()
}

func (s *PostgresStorage) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	_, raw, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	var n int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM records
		WHERE collection = $1 AND data @> $2::jsonb`,
		collection, string(raw),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *PostgresStorage) Search(ctx context.Context, query string, limit int) (SearchResponse, error) {
	slog.Debug("search query", "query", query, "limit", limit)

	var totalCount int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM records, websearch_to_tsquery('english', $1) query
		WHERE collection = $2 AND textsearch @@ query`,
		query, CollectionPages,
	).Scan(&totalCount)
	if err != nil {
		slog.Error("search count query failed", "query", query, "err", err)
		return SearchResponse{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT
			data->>'url',
			COALESCE(data->>'title', ''),
			ts_headline('english', COALESCE(data->>'description', ''), query, 'StartSel=<mark>, StopSel=</mark>, MaxWords=50, MinWords=25') AS snippet,
			ts_rank_cd(textsearch, query, 32) AS rank
		FROM records, websearch_to_tsquery('english', $1) query
		WHERE collection = $2 AND textsearch @@ query
		ORDER BY rank DESC
		LIMIT $3`,
		query, CollectionPages, limit,
	)
	if err != nil {
		slog.Error("search query failed", "query", query, "err", err)
		return SearchResponse{}, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.URL, &r.Title, &r.Snippet, &r.Rank); err != nil {
			return SearchResponse{}, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return SearchResponse{}, err
	}

	slog.Info("search complete", "query", query, "results", len(results), "total", totalCount)
	return SearchResponse{
		Results:    results,
		TotalCount: totalCount,
	}, nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
