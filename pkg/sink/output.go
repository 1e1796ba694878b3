// Package sink writes fetched feed pages to a durable tabular output in
// ascending page order.
package sink

import (
	"context"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rowsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_rows_written_total",
		Help: "Listing rows committed to an output",
	}, []string{"output"})

	commitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_output_commit_duration_seconds",
		Help:    "Time to append and durably commit one page",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"output"})
)

// Output is an append-only tabular destination with the listing.Columns schema.
type Output interface {
	// Begin prepares the destination (header row, table). It is called once,
	// before the first Append.
	Begin(ctx context.Context) error

	// Append writes all rows of one page and makes them durable before
	// returning. A page is either fully committed or not visible at all.
	Append(ctx context.Context, page int, rows []listing.Listing) error

	// Location describes where rows end up, for the run summary.
	Location() string

	Close() error
}
