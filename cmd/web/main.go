package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"

	"github.com/devraulu/sitescout/pkg/config"
	"github.com/devraulu/sitescout/pkg/crawler"
	"github.com/devraulu/sitescout/pkg/logger"
	"github.com/devraulu/sitescout/pkg/storage"
)

func main() {
	cfg, err := config.Load("config.toml")
	if err != nil {
		log.Fatal(err)
	}

	logger.InitLogger(cfg)

	store, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	addr := cfg.Web.Addr
	slog.Info("starting web server", slog.String("addr", addr), slog.String("backend", cfg.Storage.Backend))
	log.Fatal(http.ListenAndServe(addr, newServer(store)))
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresStorage(db), nil

	case "mongo":
		store, err := storage.NewMongoStorage(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		store := storage.NewMemoryStorage()
		path := filepath.Join(cfg.Crawler.OutputDir, "report.json")
		if err := loadReport(ctx, store, path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			slog.Warn("no report to serve, starting empty", slog.String("path", path))
		}
		return store, nil
	}
}

// loadReport fills a memory store from the report.json written by the
// crawler binary.
func loadReport(ctx context.Context, store storage.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var report crawler.Report
	if err := json.NewDecoder(f).Decode(&report); err != nil {
		return err
	}

	if err := store.Upsert(ctx, storage.CollectionRuns, report.Summary.RunID, report.Summary); err != nil {
		return err
	}
	for _, p := range report.Pages {
		if err := store.Upsert(ctx, storage.CollectionPages, p.URL, p); err != nil {
			return err
		}
	}
	for i, e := range report.Errors {
		if err := store.Upsert(ctx, storage.CollectionErrors, crawler.ErrorKey(report.Summary.RunID, i), e); err != nil {
			return err
		}
	}

	slog.Info("report loaded", slog.String("path", path), slog.Int("pages", len(report.Pages)))
	return nil
}
