// Command feed-scraper downloads every page of the marketplace feed and
// writes the listings to CSV (and optionally Postgres).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Sternrassler/lalafo-feed/pkg/cache"
	"github.com/Sternrassler/lalafo-feed/pkg/config"
	"github.com/Sternrassler/lalafo-feed/pkg/feed"
	"github.com/Sternrassler/lalafo-feed/pkg/logging"
	"github.com/Sternrassler/lalafo-feed/pkg/metrics"
	"github.com/Sternrassler/lalafo-feed/pkg/pagination"
	"github.com/Sternrassler/lalafo-feed/pkg/runner"
	"github.com/Sternrassler/lalafo-feed/pkg/runstate"
	"github.com/Sternrassler/lalafo-feed/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one scrape and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args)
	var help *config.HelpError
	if errors.As(err, &help) {
		fmt.Fprint(stderr, help.Usage)
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "feed-scraper: %v\n", err)
		return exitUsage
	}

	base := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})
	logger := logging.NewLogger("main")

	if err := scrape(ctx, cfg, stdout, base); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return exitFailed
	}
	return exitOK
}

func scrape(ctx context.Context, cfg *config.Config, stdout io.Writer, base zerolog.Logger) error {
	logger := base.With().Str("component", "main").Logger()
	runID := runner.NewRunID()

	publishers := runstate.Multi{runstate.MetricsPublisher{}}

	feedCfg := feed.DefaultConfig()
	feedCfg.BaseURL = cfg.Feed.BaseURL
	feedCfg.Params = feed.DefaultParams(cfg.Feed.CategoryID, cfg.Feed.PerPage)
	feedCfg.InsecureSkipVerify = cfg.Feed.InsecureTLS
	feedCfg.Timeout = cfg.Feed.Timeout
	feedCfg.MaxIdleConns = cfg.Run.Concurrency

	if cfg.Redis.URL != "" {
		redisClient, err := connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		publishers = append(publishers, runstate.NewRedisPublisher(redisClient, base))
		if cfg.Redis.CacheTTL > 0 {
			feedCfg.Cache = cache.NewManager(redisClient)
			feedCfg.CacheTTL = cfg.Redis.CacheTTL
		}
		logger.Info().
			Bool("cache", feedCfg.Cache != nil).
			Dur("cache_ttl", cfg.Redis.CacheTTL).
			Msg("Connected to Redis")
	}

	client, err := feed.New(feedCfg)
	if err != nil {
		return fmt.Errorf("create feed client: %w", err)
	}

	out, err := openOutputs(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close output")
		}
	}()

	scheduler := pagination.NewScheduler(client, pagination.Config{
		MaxConcurrency: cfg.Run.Concurrency,
		Timeout:        cfg.Feed.Timeout,
	})

	r := runner.New(client, scheduler, out, runner.Options{
		RunID:     runID,
		MaxPages:  cfg.Run.MaxPages,
		BatchSize: cfg.Run.BatchSize,
		Progress:  stdout,
		Publisher: publishers,
	})

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			return metrics.Serve(runCtx, cfg.Metrics.Addr)
		})
	}

	g.Go(func() error {
		defer stopMetrics()
		_, err := r.Run(runCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, runner.ErrBootstrap) {
			return fmt.Errorf("could not fetch the first page: %w", err)
		}
		return err
	}
	return nil
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}

// openOutputs returns the CSV output, teed with Postgres when a DSN is set.
func openOutputs(ctx context.Context, cfg *config.Config, runID string) (sink.Output, error) {
	csvOut := sink.NewCSVOutput(cfg.Output.CSVPath)
	if cfg.Output.PGDSN == "" {
		return csvOut, nil
	}

	pgOut, err := sink.NewPostgresOutput(ctx, sink.PostgresConfig{
		DSN:      cfg.Output.PGDSN,
		Table:    cfg.Output.PGTable,
		RunID:    runID,
		MaxConns: cfg.Output.PGMaxConns,
	})
	if err != nil {
		return nil, err
	}
	return sink.Tee(csvOut, pgOut), nil
}
