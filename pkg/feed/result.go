package feed

import (
	"github.com/Sternrassler/lalafo-feed/pkg/listing"
)

// PageResult is the outcome of fetching one page. Err is nil on success.
type PageResult struct {
	Page     int
	Document listing.Document
	Err      *FetchError
}

// OK reports whether the page was fetched and decoded.
func (r PageResult) OK() bool {
	return r.Err == nil
}

// Failed builds a failed result for page.
func Failed(page int, err *FetchError) PageResult {
	return PageResult{Page: page, Err: err}
}

// Cancelled builds the result for a page that was never started because ctx ended.
func Cancelled(page int, cause error) PageResult {
	return Failed(page, &FetchError{
		Class:   ErrorClassTransport,
		Message: "not started",
		Err:     cause,
	})
}
