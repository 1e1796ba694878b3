// Package config loads run parameters from command-line flags. Every flag
// falls back to an environment variable, then to a built-in default.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/feed"
	"github.com/Sternrassler/lalafo-feed/pkg/logging"
)

// HelpError is returned by Load for -h and -help. It unwraps to flag.ErrHelp.
type HelpError struct {
	Usage string
}

func (e *HelpError) Error() string { return "help requested" }

func (e *HelpError) Unwrap() error { return flag.ErrHelp }

// usage renders the flag defaults of fs.
func usage(fs *flag.FlagSet) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Usage: %s [flags]\n\nFlags:\n", fs.Name())
	fs.SetOutput(&buf)
	fs.PrintDefaults()
	fs.SetOutput(io.Discard)
	return buf.String()
}

// Config holds all parameters of one run.
type Config struct {
	Feed    FeedConfig
	Run     RunConfig
	Output  OutputConfig
	Log     LogConfig
	Redis   RedisConfig
	Metrics MetricsConfig
}

// FeedConfig describes the remote feed.
type FeedConfig struct {
	BaseURL     string
	CategoryID  int
	PerPage     int
	InsecureTLS bool
	// Timeout bounds one page request
	Timeout time.Duration
}

// RunConfig tunes the fetch pipeline.
type RunConfig struct {
	Concurrency int
	// BatchSize of 0 means 2x Concurrency
	BatchSize int
	// MaxPages of 0 means every page the feed reports
	MaxPages int
}

// OutputConfig selects the outputs. The CSV file is always written; Postgres
// is added when a DSN is set.
type OutputConfig struct {
	CSVPath    string
	PGDSN      string
	PGTable    string
	PGMaxConns int
}

// LogConfig controls zerolog.
type LogConfig struct {
	Level  string
	Pretty bool
}

// RedisConfig enables the response cache and run state publishing.
type RedisConfig struct {
	// URL in redis:// form; empty disables Redis
	URL      string
	CacheTTL time.Duration
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr to serve /metrics on; empty disables it
	Addr string
}

// Load parses args (without the program name) on top of the environment.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("feed-scraper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.Feed.BaseURL, "base-url", getEnv("FEED_BASE_URL", feed.DefaultBaseURL), "Feed endpoint. Env: FEED_BASE_URL")
	fs.IntVar(&cfg.Feed.CategoryID, "category", getEnvInt("FEED_CATEGORY_ID", 1423), "Category id. Env: FEED_CATEGORY_ID")
	fs.IntVar(&cfg.Feed.PerPage, "per-page", getEnvInt("FEED_PER_PAGE", 20), "Listings per page. Env: FEED_PER_PAGE")
	fs.BoolVar(&cfg.Feed.InsecureTLS, "insecure-tls", getEnvBool("FEED_INSECURE_TLS", true), "Skip TLS certificate verification. Env: FEED_INSECURE_TLS")
	fs.DurationVar(&cfg.Feed.Timeout, "timeout", getEnvDuration("FEED_TIMEOUT", 30*time.Second), "Per page timeout. Env: FEED_TIMEOUT")

	fs.IntVar(&cfg.Run.Concurrency, "concurrency", getEnvInt("FEED_CONCURRENCY", 5), "Max fetches in flight. Env: FEED_CONCURRENCY")
	fs.IntVar(&cfg.Run.BatchSize, "batch-size", getEnvInt("FEED_BATCH_SIZE", 0), "Pages per batch (0 = 2x concurrency). Env: FEED_BATCH_SIZE")
	fs.IntVar(&cfg.Run.MaxPages, "max-pages", getEnvInt("FEED_MAX_PAGES", 0), "Stop after this many pages (0 = all). Env: FEED_MAX_PAGES")

	fs.StringVar(&cfg.Output.CSVPath, "out", getEnv("FEED_OUT", "data/home.csv"), "Output CSV path (truncated). Env: FEED_OUT")
	fs.StringVar(&cfg.Output.PGDSN, "pg-dsn", getEnv("PG_DSN", ""), "Postgres DSN (enables the table output). Env: PG_DSN")
	fs.StringVar(&cfg.Output.PGTable, "pg-table", getEnv("PG_TABLE", "listings"), "Postgres table. Env: PG_TABLE")
	fs.IntVar(&cfg.Output.PGMaxConns, "pg-max-conns", getEnvInt("PG_MAX_CONNS", 2), "Postgres max connections. Env: PG_MAX_CONNS")

	fs.StringVar(&cfg.Log.Level, "log-level", getEnv("LOG_LEVEL", "info"), "debug|info|warn|error. Env: LOG_LEVEL")
	fs.BoolVar(&cfg.Log.Pretty, "log-pretty", getEnvBool("LOG_PRETTY", true), "Console log output instead of JSON. Env: LOG_PRETTY")

	fs.StringVar(&cfg.Redis.URL, "redis-url", getEnv("REDIS_URL", ""), "Redis URL (enables cache and run state). Env: REDIS_URL")
	fs.DurationVar(&cfg.Redis.CacheTTL, "cache-ttl", getEnvDuration("FEED_CACHE_TTL", 0), "Page cache TTL (0 = off). Env: FEED_CACHE_TTL")

	fs.StringVar(&cfg.Metrics.Addr, "metrics-addr", getEnv("METRICS_ADDR", ""), "Serve /metrics on this address, e.g. :9090. Env: METRICS_ADDR")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, &HelpError{Usage: usage(fs)}
		}
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the run cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.Feed.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("base-url must be an absolute URL, got %q", c.Feed.BaseURL))
	}
	if c.Feed.PerPage < 1 {
		errs = append(errs, errors.New("per-page must be >= 1"))
	}
	if c.Feed.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if c.Run.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be >= 1"))
	}
	if c.Run.BatchSize < 0 {
		errs = append(errs, errors.New("batch-size must be >= 0"))
	}
	if c.Run.MaxPages < 0 {
		errs = append(errs, errors.New("max-pages must be >= 0"))
	}
	if c.Output.CSVPath == "" {
		errs = append(errs, errors.New("out is required"))
	}
	if c.Output.PGDSN != "" && c.Output.PGTable == "" {
		errs = append(errs, errors.New("pg-table is required with pg-dsn"))
	}
	if err := logging.ValidLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Redis.CacheTTL < 0 {
		errs = append(errs, errors.New("cache-ttl must be >= 0"))
	}
	if c.Redis.CacheTTL > 0 && c.Redis.URL == "" {
		errs = append(errs, errors.New("cache-ttl requires redis-url"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := getEnv(key, ""); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := getEnv(key, ""); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := getEnv(key, ""); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
