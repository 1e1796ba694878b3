package runstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis keys for run state storage.
const (
	RedisKeyRunPrefix = "feed:run:"
	RedisKeyLatestRun = "feed:run:latest"
)

// DefaultStateTTL keeps published run state around for a day.
const DefaultStateTTL = 24 * time.Hour

// ErrRunNotFound is returned by Load for unknown run ids.
var ErrRunNotFound = errors.New("run state not found")

// Prometheus gauges mirroring the current run.
var (
	runPagesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_run_pages_to_fetch",
		Help: "Pages scheduled for the current run",
	})

	runPagesProcessed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feed_run_pages",
		Help: "Pages processed in the current run by outcome",
	}, []string{"outcome"})

	runListingsWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_run_listings_written",
		Help: "Listings written in the current run",
	})

	runPublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_run_publish_errors_total",
		Help: "Failed attempts to publish run state to Redis",
	})
)

// Publisher receives every RunState update.
type Publisher interface {
	Publish(ctx context.Context, state RunState) error
}

// MetricsPublisher mirrors run state into Prometheus gauges.
type MetricsPublisher struct{}

// Publish implements Publisher.
func (MetricsPublisher) Publish(_ context.Context, state RunState) error {
	runPagesTotal.Set(float64(state.PagesToFetch))
	runPagesProcessed.WithLabelValues("written").Set(float64(state.PagesFetched - state.PagesEmpty))
	runPagesProcessed.WithLabelValues("empty").Set(float64(state.PagesEmpty))
	runPagesProcessed.WithLabelValues("failed").Set(float64(state.PagesFailed))
	runListingsWritten.Set(float64(state.ListingsWritten))
	return nil
}

// RedisPublisher stores run state in Redis so other processes can watch a run.
type RedisPublisher struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisPublisher creates a publisher writing to redisClient.
func NewRedisPublisher(redisClient *redis.Client, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{
		redis:  redisClient,
		ttl:    DefaultStateTTL,
		logger: logger.With().Str("component", "runstate").Logger(),
	}
}

// Publish stores the state and marks the run as the latest one.
func (p *RedisPublisher) Publish(ctx context.Context, state RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal run state: %w", err)
	}

	pipe := p.redis.TxPipeline()
	pipe.Set(ctx, RedisKeyRunPrefix+state.RunID, data, p.ttl)
	pipe.Set(ctx, RedisKeyLatestRun, state.RunID, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		runPublishErrors.Inc()
		return fmt.Errorf("store run state in redis: %w", err)
	}

	p.logger.Debug().
		Str("run_id", state.RunID).
		Str("phase", string(state.Phase)).
		Int("listings_written", state.ListingsWritten).
		Msg("Run state published")

	return nil
}

// Load reads a published run state. An empty runID loads the latest run.
func (p *RedisPublisher) Load(ctx context.Context, runID string) (*RunState, error) {
	if runID == "" {
		id, err := p.redis.Get(ctx, RedisKeyLatestRun).Result()
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get latest run: %w", err)
		}
		runID = id
	}

	data, err := p.redis.Get(ctx, RedisKeyRunPrefix+runID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run state: %w", err)
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run state: %w", err)
	}
	return &state, nil
}

// Multi publishes to every publisher; errors are joined and do not stop the others.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, state RunState) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
