package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/feed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	fetchInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_fetch_inflight",
		Help: "Number of page fetches currently in flight",
	})

	batchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_batches_total",
		Help: "Total number of page batches dispatched",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_batch_duration_seconds",
		Help:    "Wall time from batch dispatch to barrier release",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Config holds scheduler configuration
type Config struct {
	// MaxConcurrency is the maximum number of fetches in flight at any instant
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns the concurrency budget used against the live feed
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches a single page. Failures are reported in the result.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) feed.PageResult
}

// Scheduler dispatches batches of pages to a PageFetcher under a concurrency budget
type Scheduler struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(fetcher PageFetcher, config Config) *Scheduler {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Scheduler{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "scheduler").Logger(),
	}
}

// MaxConcurrency returns the concurrency budget.
func (s *Scheduler) MaxConcurrency() int {
	return s.config.MaxConcurrency
}

// RunBatch fetches every page in pages and blocks until all of them have a
// result. At most MaxConcurrency fetches run at once; a freed slot takes the
// next un-started page in submission order. Pages not started before ctx is
// done get a transport failure wrapping ctx.Err().
func (s *Scheduler) RunBatch(ctx context.Context, pages []int) map[int]feed.PageResult {
	results := make(map[int]feed.PageResult, len(pages))
	if len(pages) == 0 {
		return results
	}

	start := time.Now()
	batchesTotal.Inc()

	pageQueue := make(chan int, len(pages))
	for _, page := range pages {
		pageQueue <- page
	}
	close(pageQueue)

	pageResults := make(chan feed.PageResult, len(pages))

	workers := min(s.config.MaxConcurrency, len(pages))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go s.worker(ctx, pageQueue, pageResults, &wg, i)
	}

	go func() {
		wg.Wait()
		close(pageResults)
	}()

	failed := 0
	for result := range pageResults {
		if !result.OK() {
			failed++
		}
		results[result.Page] = result
	}

	batchDuration.Observe(time.Since(start).Seconds())
	s.logger.Debug().
		Int("first_page", pages[0]).
		Int("pages", len(pages)).
		Int("failed", failed).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Batch complete")

	return results
}

// worker processes pages from the queue until it is drained
func (s *Scheduler) worker(ctx context.Context, pageQueue <-chan int, results chan<- feed.PageResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for page := range pageQueue {
		if err := ctx.Err(); err != nil {
			results <- feed.Cancelled(page, err)
			continue
		}

		pageCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
		fetchInflight.Inc()
		result := s.fetcher.FetchPage(pageCtx, page)
		fetchInflight.Dec()
		cancel()

		result.Page = page
		results <- result
		pagesProcessed++
	}

	s.logger.Trace().
		Int("worker_id", workerID).
		Int("pages_processed", pagesProcessed).
		Msg("Worker completed")
}
