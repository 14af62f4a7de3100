package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	_ "github.com/lib/pq"

	frontier "github.com/devraulu/sitescout/pkg"
	"github.com/devraulu/sitescout/pkg/analysis"
	"github.com/devraulu/sitescout/pkg/classify"
	"github.com/devraulu/sitescout/pkg/config"
	"github.com/devraulu/sitescout/pkg/crawler"
	"github.com/devraulu/sitescout/pkg/logger"
	"github.com/devraulu/sitescout/pkg/sitemap"
	"github.com/devraulu/sitescout/pkg/storage"
	"github.com/devraulu/sitescout/pkg/tracker"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to a .toml or .yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("fatal: couldn't load config", slog.Any("err", err))
		os.Exit(1)
	}

	logger.InitLogger(cfg)

	seeds := flag.Args()
	if len(seeds) == 0 {
		seeds, err = frontier.ReadSeeds(cfg.Crawler.SeedsFile)
		if err != nil {
			slog.Error("fatal: couldn't load seeds", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("fatal: couldn't open storage", slog.String("backend", cfg.Storage.Backend), slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	var summarizer analysis.Summarizer
	if cfg.Analysis.Enabled {
		lm := analysis.NewLMStudio(analysis.Config{
			Endpoint: cfg.Analysis.Endpoint,
			Model:    cfg.Analysis.Model,
			Timeout:  cfg.Analysis.GetTimeout(),
		})
		slog.Info("summarizer enabled", slog.String("endpoint", lm.BaseURL()))
		summarizer = lm
	}

	c := crawler.New(
		store,
		tracker.New(cfg.Tracker.HistorySize, cfg.Tracker.ErrorLogCap),
		classify.New(classify.Options{
			Keywords:     cfg.Classifier.Keywords,
			DomainMarker: cfg.Classifier.DomainMarker,
			Platforms:    cfg.Classifier.Platforms,
			Threshold:    cfg.Classifier.Threshold,
		}),
		summarizer,
	)

	var (
		wg     sync.WaitGroup
		report *crawler.Report
		runErr error
	)

	appSignal := make(chan os.Signal, 1)
	signal.Notify(appSignal, syscall.SIGINT, syscall.SIGQUIT)

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		report, runErr = c.Run(ctx, seeds, crawler.OptionsFromConfig(cfg))
	}()

	select {
	case s := <-appSignal:
		slog.Info("received system signal", slog.String("signal", s.String()))
		stop()
	case <-done:
	}

	wg.Wait()

	if runErr != nil {
		slog.Error("fatal: crawl failed", slog.Any("err", runErr))
		os.Exit(1)
	}

	if err := writeOutputs(cfg.Crawler.OutputDir, report); err != nil {
		slog.Error("fatal: couldn't write outputs", slog.String("dir", cfg.Crawler.OutputDir), slog.Any("err", err))
		os.Exit(1)
	}

	slog.Info("shutdown complete",
		slog.String("run_id", report.Summary.RunID),
		slog.Int("pages", report.Summary.TotalPages),
		slog.Int("matched", report.Summary.MatchedPages),
		slog.Bool("cancelled", report.Summary.Cancelled),
	)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := storage.RunMigrations(pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return storage.NewPostgresStorage(pool), nil

	case "mongo":
		store, err := storage.NewMongoStorage(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return storage.NewMemoryStorage(), nil
	}
}

func writeOutputs(dir string, report *crawler.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	reportFile, err := os.Create(filepath.Join(dir, "report.json"))
	if err != nil {
		return err
	}
	defer reportFile.Close()

	enc := json.NewEncoder(reportFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("report.json: %w", err)
	}

	sitemapFile, err := os.Create(filepath.Join(dir, "sitemap.xml"))
	if err != nil {
		return err
	}
	defer sitemapFile.Close()

	if err := sitemap.WriteXML(sitemapFile, report.Sitemap); err != nil {
		return fmt.Errorf("sitemap.xml: %w", err)
	}

	slog.Info("outputs written", slog.String("dir", dir))
	return nil
}
