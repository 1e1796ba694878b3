// Package pagination runs batches of feed page fetches under a fixed
// concurrency budget.
//
// Example usage:
//
//	scheduler := pagination.NewScheduler(feedClient, pagination.DefaultConfig())
//	results := scheduler.RunBatch(ctx, []int{2, 3, 4, 5})
//
// The scheduler:
//   - Starts min(MaxConcurrency, len(batch)) workers for the batch
//   - Feeds page numbers to the workers in submission order (FIFO)
//   - Bounds each fetch with a per-page timeout
//   - Returns only after every page has a result (success or failure)
//   - Never retries and never cancels siblings when a page fails
//
// Results come back as a map keyed by page number; ordering is the caller's job.
package pagination
