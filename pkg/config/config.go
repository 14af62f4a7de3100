package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

const envPrefix = "SITESCOUT_"

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DSN        string           `toml:"dsn" yaml:"dsn"`
	Storage    StorageConfig    `toml:"storage" yaml:"storage"`
	Crawler    CrawlerConfig    `toml:"crawler" yaml:"crawler"`
	Politeness PolitenessConfig `toml:"politeness" yaml:"politeness"`
	Classifier ClassifierConfig `toml:"classifier" yaml:"classifier"`
	Embed      EmbedConfig      `toml:"embed" yaml:"embed"`
	Analysis   AnalysisConfig   `toml:"analysis" yaml:"analysis"`
	Tracker    TrackerConfig    `toml:"tracker" yaml:"tracker"`
	Logging    LoggingConfig    `toml:"logging" yaml:"logging"`
	Web        WebConfig        `toml:"web" yaml:"web"`
}

type StorageConfig struct {
	// Backend is one of memory, postgres or mongo.
	Backend       string `toml:"backend" yaml:"backend"`
	MongoURI      string `toml:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database" yaml:"mongo_database"`
}

type CrawlerConfig struct {
	UserAgent      string `toml:"user_agent" yaml:"user_agent"`
	SeedsFile      string `toml:"seeds_file" yaml:"seeds_file"`
	OutputDir      string `toml:"output_dir" yaml:"output_dir"`
	MaxPages       int    `toml:"max_pages" yaml:"max_pages"`
	MaxDepth       int    `toml:"max_depth" yaml:"max_depth"`
	Workers        int    `toml:"workers" yaml:"workers"`
	MaxRetries     int    `toml:"max_retries" yaml:"max_retries"`
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout"`
	RetryBaseDelay string `toml:"retry_base_delay" yaml:"retry_base_delay"`
	MaxQueryParams int    `toml:"max_query_params" yaml:"max_query_params"`
	MaxBodyBytes   int64  `toml:"max_body_bytes" yaml:"max_body_bytes"`
	RespectRobots  bool   `toml:"respect_robots" yaml:"respect_robots"`

	// DiscoverSitemaps queues URLs listed in each seed host's /sitemap.xml.
	DiscoverSitemaps bool `toml:"discover_sitemaps" yaml:"discover_sitemaps"`
}

type PolitenessConfig struct {
	Delay         string `toml:"delay" yaml:"delay"`
	RobotsTimeout string `toml:"robots_timeout" yaml:"robots_timeout"`
}

type ClassifierConfig struct {
	Threshold    int            `toml:"threshold" yaml:"threshold"`
	DomainMarker string         `toml:"domain_marker" yaml:"domain_marker"`
	Platforms    []string       `toml:"platforms" yaml:"platforms"`
	Keywords     map[string]int `toml:"keywords" yaml:"keywords"`
}

type EmbedConfig struct {
	Width      int  `toml:"width" yaml:"width"`
	Height     int  `toml:"height" yaml:"height"`
	Responsive bool `toml:"responsive" yaml:"responsive"`
}

type AnalysisConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Endpoint string `toml:"endpoint" yaml:"endpoint"`
	Model    string `toml:"model" yaml:"model"`
	Timeout  string `toml:"timeout" yaml:"timeout"`
}

type TrackerConfig struct {
	HistorySize int `toml:"history_size" yaml:"history_size"`
	ErrorLogCap int `toml:"error_log_cap" yaml:"error_log_cap"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

type WebConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

// Default returns a config with every field set to its built-in value.
func Default() *Config {
	var cfg Config
	cfg.Storage.Backend = "memory"
	cfg.Storage.MongoDatabase = "sitescout"
	cfg.Crawler.UserAgent = "sitescout/1.0"
	cfg.Crawler.SeedsFile = "seeds.txt"
	cfg.Crawler.OutputDir = "out"
	cfg.Crawler.MaxPages = 100
	cfg.Crawler.MaxDepth = 3
	cfg.Crawler.Workers = 5
	cfg.Crawler.MaxRetries = 3
	cfg.Crawler.RequestTimeout = "10s"
	cfg.Crawler.RetryBaseDelay = "1s"
	cfg.Crawler.MaxQueryParams = 5
	cfg.Crawler.MaxBodyBytes = 10 << 20
	cfg.Crawler.RespectRobots = true
	cfg.Politeness.Delay = "1s"
	cfg.Politeness.RobotsTimeout = "5s"
	cfg.Classifier.Threshold = 10
	cfg.Classifier.DomainMarker = "bambi"
	cfg.Classifier.Platforms = []string{"bambicloud", "hypnotube"}
	cfg.Embed.Width = 560
	cfg.Embed.Height = 315
	cfg.Embed.Responsive = true
	cfg.Analysis.Endpoint = "http://localhost:1234"
	cfg.Analysis.Timeout = "30s"
	cfg.Tracker.HistorySize = 50
	cfg.Tracker.ErrorLogCap = 1000
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "info"
	cfg.Web.Addr = ":8080"
	return &cfg
}

// Load reads a TOML or YAML file (chosen by extension), then applies
// overrides from a .env file and the process environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(envPrefix + "DSN"); v != "" {
		c.DSN = v
	}
	if v := getenv(envPrefix + "STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv(envPrefix + "MONGO_URI"); v != "" {
		c.Storage.MongoURI = v
	}
	if v := getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv(envPrefix + "ANALYSIS_ENDPOINT"); v != "" {
		c.Analysis.Endpoint = v
	}
	if v := getenv(envPrefix + "MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Crawler.MaxPages = n
		}
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("%w: postgres backend needs a dsn", ErrInvalidConfig)
		}
	case "mongo":
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("%w: mongo backend needs mongo_uri", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.Crawler.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("%w: max_pages must be at least 1", ErrInvalidConfig)
	}
	if c.Crawler.MaxDepth < 0 || c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("%w: max_depth and max_retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func (c *PolitenessConfig) GetDelay() time.Duration {
	return parseDuration(c.Delay, 1*time.Second)
}

func (c *PolitenessConfig) GetRobotsTimeout() time.Duration {
	return parseDuration(c.RobotsTimeout, 5*time.Second)
}

func (c *CrawlerConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, 10*time.Second)
}

func (c *CrawlerConfig) GetRetryBaseDelay() time.Duration {
	return parseDuration(c.RetryBaseDelay, 1*time.Second)
}

func (c *AnalysisConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}
