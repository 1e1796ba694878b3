package sink

import (
	"context"
	"fmt"
	"sort"

	"github.com/Sternrassler/lalafo-feed/pkg/feed"
	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/rs/zerolog"
)

// Status is what happened to one page in the sink.
type Status string

const (
	StatusWritten Status = "written"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// PageOutcome reports the sink result of one page.
type PageOutcome struct {
	Page   int
	Status Status
	Rows   int
	Err    *feed.FetchError
}

// Writer applies fetch results to an Output in ascending page order.
type Writer struct {
	out    Output
	logger zerolog.Logger
}

// NewWriter creates a writer over out.
func NewWriter(out Output, logger zerolog.Logger) *Writer {
	return &Writer{
		out:    out,
		logger: logger.With().Str("component", "sink").Logger(),
	}
}

// Write commits a batch of results sorted by page number. Failed and empty
// pages are logged and skipped. An output error stops the batch and is
// returned together with the outcomes of the pages committed before it.
func (w *Writer) Write(ctx context.Context, results map[int]feed.PageResult) ([]PageOutcome, error) {
	pages := make([]int, 0, len(results))
	for p := range results {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	outcomes := make([]PageOutcome, 0, len(pages))
	for _, p := range pages {
		outcome, err := w.WritePage(ctx, results[p])
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// WritePage commits a single result.
func (w *Writer) WritePage(ctx context.Context, result feed.PageResult) (PageOutcome, error) {
	if !result.OK() {
		w.logger.Warn().
			Int("page", result.Page).
			Str("error_class", string(result.Err.Class)).
			Int("status_code", result.Err.StatusCode).
			Err(result.Err).
			Msg("Page fetch failed, skipping")
		return PageOutcome{Page: result.Page, Status: StatusFailed, Err: result.Err}, nil
	}

	rows := listing.ItemsToRows(result.Document)
	if len(rows) == 0 {
		w.logger.Info().Int("page", result.Page).Msg("Page has no items, skipping")
		return PageOutcome{Page: result.Page, Status: StatusEmpty}, nil
	}

	if err := w.out.Append(ctx, result.Page, rows); err != nil {
		w.logger.Error().Err(err).Int("page", result.Page).Msg("Output append failed")
		return PageOutcome{}, fmt.Errorf("write page %d: %w", result.Page, err)
	}

	w.logger.Debug().
		Int("page", result.Page).
		Int("rows", len(rows)).
		Msg("Page committed")
	return PageOutcome{Page: result.Page, Status: StatusWritten, Rows: len(rows)}, nil
}
