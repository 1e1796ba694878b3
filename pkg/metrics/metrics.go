// Package metrics serves the Prometheus registry of the scraper. Collectors
// are declared with promauto in the packages that own them (feed, cache,
// pagination, sink, runstate); this package only exposes them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Handler returns the HTTP handler with /metrics and /health.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	return mux
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	return serve(ctx, ln)
}

func serve(ctx context.Context, ln net.Listener) error {
	logger := logging.NewLogger("metrics")
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Msg("Serving metrics")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve metrics: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics: %w", err)
	}
	return nil
}

// Metrics reference
//
// Feed requests (pkg/feed):
//   - feed_requests_total{status} (Counter): page requests by HTTP status, "cache" or "transport_error"
//   - feed_request_duration_seconds (Histogram): page request duration
//   - feed_errors_total{class} (Counter): failed pages by class (http_status, transport, decode, invalid)
//
// Cache (pkg/cache):
//   - feed_cache_hits_total, feed_cache_misses_total (Counter)
//   - feed_cache_stored_bytes_total (Counter): bytes written to Redis
//   - feed_cache_errors_total{operation} (Counter)
//
// Scheduler (pkg/pagination):
//   - feed_fetch_inflight (Gauge): fetches currently in flight, never above the concurrency budget
//   - feed_batches_total (Counter), feed_batch_duration_seconds (Histogram)
//
// Sink (pkg/sink):
//   - feed_rows_written_total{output} (Counter)
//   - feed_output_commit_duration_seconds{output} (Histogram): append + fsync / commit per page
//
// Run (pkg/runstate):
//   - feed_run_pages_to_fetch, feed_run_listings_written (Gauge)
//   - feed_run_pages{outcome} (Gauge): written, empty, failed
//   - feed_run_publish_errors_total (Counter)
//
// Example queries:
//
//   # Page failure ratio
//   sum(rate(feed_errors_total[5m])) / sum(rate(feed_requests_total[5m]))
//
//   # P95 page latency
//   histogram_quantile(0.95, rate(feed_request_duration_seconds_bucket[5m]))
