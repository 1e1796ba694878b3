// Package runstate holds the counters of a single feed run and publishes
// them for observers (Redis, Prometheus).
package runstate

import (
	"time"
)

// Phase is the orchestrator state.
type Phase string

const (
	PhaseBootstrapping Phase = "bootstrapping"
	PhaseDraining      Phase = "draining"
	PhaseDone          Phase = "done"
	PhaseAborted       Phase = "aborted"
)

// RunState is the progress of one run. Counters only grow.
type RunState struct {
	RunID string `json:"run_id"`
	Phase Phase  `json:"phase"`

	// TotalPages and TotalCount come from the bootstrap page metadata.
	TotalPages int `json:"total_pages"`
	TotalCount int `json:"total_count"`

	// PagesToFetch is min(max pages, TotalPages).
	PagesToFetch int `json:"pages_to_fetch"`

	// PagesFetched counts successful fetches, including empty pages.
	PagesFetched    int `json:"pages_fetched"`
	PagesFailed     int `json:"pages_failed"`
	PagesEmpty      int `json:"pages_empty"`
	ListingsWritten int `json:"listings_written"`

	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New starts a run in the bootstrapping phase.
func New(runID string) RunState {
	now := time.Now()
	return RunState{
		RunID:     runID,
		Phase:     PhaseBootstrapping,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Plan records the bootstrap metadata and enters draining.
func (s *RunState) Plan(totalPages, totalCount, pagesToFetch int) {
	s.TotalPages = totalPages
	s.TotalCount = totalCount
	s.PagesToFetch = pagesToFetch
	s.setPhase(PhaseDraining)
}

// RecordWritten counts a committed page.
func (s *RunState) RecordWritten(rows int) {
	s.PagesFetched++
	s.ListingsWritten += rows
	s.touch()
}

// RecordEmpty counts a fetched page without rows.
func (s *RunState) RecordEmpty() {
	s.PagesFetched++
	s.PagesEmpty++
	s.touch()
}

// RecordFailed counts a page whose fetch failed.
func (s *RunState) RecordFailed() {
	s.PagesFailed++
	s.touch()
}

// Finish moves the run to done.
func (s *RunState) Finish() {
	s.setPhase(PhaseDone)
}

// Abort moves the run to aborted.
func (s *RunState) Abort() {
	s.setPhase(PhaseAborted)
}

// PagesProcessed is the number of pages that reached the sink.
func (s *RunState) PagesProcessed() int {
	return s.PagesFetched + s.PagesFailed
}

// Elapsed returns the run duration so far.
func (s *RunState) Elapsed() time.Duration {
	return s.UpdatedAt.Sub(s.StartedAt)
}

func (s *RunState) setPhase(p Phase) {
	s.Phase = p
	s.touch()
}

func (s *RunState) touch() {
	s.UpdatedAt = time.Now()
}
