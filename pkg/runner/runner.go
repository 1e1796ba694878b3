// Package runner drives one feed run: bootstrap page 1, then drain the
// remaining pages in batches through the scheduler and the sink.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/feed"
	"github.com/Sternrassler/lalafo-feed/pkg/logging"
	"github.com/Sternrassler/lalafo-feed/pkg/pagination"
	"github.com/Sternrassler/lalafo-feed/pkg/runstate"
	"github.com/Sternrassler/lalafo-feed/pkg/sink"
	"github.com/rs/zerolog"
)

// ErrBootstrap is returned when page 1 cannot be fetched. No output is
// opened in that case.
var ErrBootstrap = errors.New("bootstrap failed")

// BatchRunner fetches a batch of pages under the concurrency cap.
type BatchRunner interface {
	RunBatch(ctx context.Context, pages []int) map[int]feed.PageResult
	MaxConcurrency() int
}

// Options tune a run.
type Options struct {
	// RunID identifies the run in logs and published state. Generated when empty.
	RunID string

	// MaxPages caps the number of pages fetched; <= 0 means all pages.
	MaxPages int

	// BatchSize is the number of pages per barrier; <= 0 means 2x concurrency.
	BatchSize int

	// Progress receives the human-readable progress lines (default io.Discard).
	Progress io.Writer

	// Publisher receives RunState after every change (optional).
	Publisher runstate.Publisher

	// Logger overrides the component logger.
	Logger *zerolog.Logger
}

// Runner is the run orchestrator.
type Runner struct {
	fetcher   pagination.PageFetcher
	scheduler BatchRunner
	out       sink.Output
	writer    *sink.Writer
	opts      Options
	logger    zerolog.Logger
}

// New creates a runner. The output is opened by Run once page 1 succeeded.
func New(fetcher pagination.PageFetcher, scheduler BatchRunner, out sink.Output, opts Options) *Runner {
	logger := logging.NewLogger("runner")
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("component", "runner").Logger()
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 2 * max(scheduler.MaxConcurrency(), 1)
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}

	sinkLogger := logger
	if opts.Logger != nil {
		sinkLogger = *opts.Logger
	}

	return &Runner{
		fetcher:   fetcher,
		scheduler: scheduler,
		out:       out,
		writer:    sink.NewWriter(out, sinkLogger),
		opts:      opts,
		logger:    logger.With().Str("run_id", opts.RunID).Logger(),
	}
}

// NewRunID returns a time based run identifier.
func NewRunID() string {
	return time.Now().UTC().Format("20060102T150405.000Z")
}

// Run executes the whole run and returns the final state. The state is
// returned on error as well.
func (r *Runner) Run(ctx context.Context) (runstate.RunState, error) {
	state := runstate.New(r.opts.RunID)
	r.publish(ctx, state)

	r.logger.Info().Msg("Fetching page 1")
	first := r.fetcher.FetchPage(ctx, 1)
	if !first.OK() {
		state.Abort()
		r.publish(ctx, state)
		r.logger.Error().
			Str("error_class", string(first.Err.Class)).
			Err(first.Err).
			Msg("Bootstrap fetch failed")
		return state, fmt.Errorf("%w: %w", ErrBootstrap, first.Err)
	}

	meta := first.Document.Meta()
	totalPages := meta.PageCount
	if totalPages < 1 {
		totalPages = 1
	}
	pagesToFetch := totalPages
	if r.opts.MaxPages > 0 {
		pagesToFetch = min(r.opts.MaxPages, totalPages)
	}

	state.Plan(totalPages, meta.TotalCount, pagesToFetch)
	r.progress("Total listings: %d across %d pages. Fetching %d pages.\n",
		meta.TotalCount, totalPages, pagesToFetch)
	r.logger.Info().
		Int("total_pages", totalPages).
		Int("total_count", meta.TotalCount).
		Int("pages_to_fetch", pagesToFetch).
		Int("batch_size", r.opts.BatchSize).
		Msg("Run planned")

	if err := r.out.Begin(ctx); err != nil {
		return r.abort(ctx, state, fmt.Errorf("open output: %w", err))
	}

	outcome, err := r.writer.WritePage(ctx, first)
	if err != nil {
		return r.abort(ctx, state, err)
	}
	r.record(&state, outcome)
	r.publish(ctx, state)

	for start := 2; start <= pagesToFetch; start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			r.logger.Warn().
				Int("next_page", start).
				Int("listings_written", state.ListingsWritten).
				Msg("Run cancelled")
			return r.abort(ctx, state, err)
		}

		end := min(start+r.opts.BatchSize-1, pagesToFetch)
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}

		results := r.scheduler.RunBatch(ctx, pages)
		outcomes, err := r.writer.Write(ctx, results)
		for _, o := range outcomes {
			r.record(&state, o)
		}
		if err != nil {
			return r.abort(ctx, state, err)
		}
		r.publish(ctx, state)
	}

	state.Finish()
	r.publish(context.WithoutCancel(ctx), state)

	r.progress("Done. Saved %d listings -> %s\n", state.ListingsWritten, r.out.Location())
	r.logger.Info().
		Int("listings_written", state.ListingsWritten).
		Int("pages_failed", state.PagesFailed).
		Int("pages_empty", state.PagesEmpty).
		Dur("elapsed", state.Elapsed()).
		Msg("Run complete")

	return state, nil
}

// record applies one sink outcome to the state and prints its progress line.
// Failed pages are reported by the sink's log line only.
func (r *Runner) record(state *runstate.RunState, o sink.PageOutcome) {
	switch o.Status {
	case sink.StatusWritten:
		state.RecordWritten(o.Rows)
		r.progress("Page %3d/%d: %d listings (total: %d)\n",
			o.Page, state.PagesToFetch, o.Rows, state.ListingsWritten)
	case sink.StatusEmpty:
		state.RecordEmpty()
		r.progress("Page %3d/%d: no items, skipping.\n", o.Page, state.PagesToFetch)
	case sink.StatusFailed:
		state.RecordFailed()
	}
}

func (r *Runner) abort(ctx context.Context, state runstate.RunState, err error) (runstate.RunState, error) {
	state.Abort()
	r.publish(context.WithoutCancel(ctx), state)
	return state, err
}

func (r *Runner) publish(ctx context.Context, state runstate.RunState) {
	if r.opts.Publisher == nil {
		return
	}
	if err := r.opts.Publisher.Publish(ctx, state); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to publish run state")
	}
}

func (r *Runner) progress(format string, args ...any) {
	fmt.Fprintf(r.opts.Progress, format, args...)
}
