// Package testutil provides a configurable mock of the marketplace feed API.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// MockPage defines the response for one page number.
type MockPage struct {
	// StatusCode defaults to 200
	StatusCode int

	// Items are rendered under "items" when Body is empty
	Items []map[string]any

	// Body replaces the generated JSON when set
	Body string

	// Delay is slept before responding
	Delay time.Duration
}

// MockFeed is an httptest server speaking the feed's page protocol.
type MockFeed struct {
	server *httptest.Server

	mu         sync.Mutex
	pages      map[int]MockPage
	totalPages int
	totalCount int
	perPage    int

	requests    []int
	inflight    int
	maxInflight int
	lastHeader  http.Header
	lastQuery   url.Values
}

// NewMockFeed serves totalPages pages of perPage items each.
func NewMockFeed(totalPages, perPage int) *MockFeed {
	m := &MockFeed{
		pages:      make(map[int]MockPage, totalPages),
		totalPages: totalPages,
		totalCount: totalPages * perPage,
		perPage:    perPage,
	}
	for p := 1; p <= totalPages; p++ {
		m.pages[p] = MockPage{Items: Items(p, perPage)}
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// NewMockFeedTLS is NewMockFeed behind a self-signed TLS certificate.
func NewMockFeedTLS(totalPages, perPage int) *MockFeed {
	m := NewMockFeed(totalPages, perPage)
	m.server.Close()
	m.server = httptest.NewTLSServer(http.HandlerFunc(m.handle))
	return m
}

// Items generates n listing items for page; ids are page*1000+i.
func Items(page, n int) []map[string]any {
	items := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		id := page*1000 + i
		items = append(items, map[string]any{
			"id":           id,
			"title":        fmt.Sprintf("Listing %d", id),
			"price":        100 + i,
			"currency":     "AZN",
			"city":         map[string]any{"id": 1, "name": "Baku"},
			"views":        i * 10,
			"is_vip":       i%2 == 0,
			"is_premium":   false,
			"url":          fmt.Sprintf("/baku/ads/listing-id-%d", id),
			"created_time": 1700000000 + id,
			"updated_time": 1700000500 + id,
			"category_id":  1423,
			"user_id":      500 + i,
			"images":       []map[string]any{{"id": id}},
			"description":  fmt.Sprintf("line one\nline two %d", id),
		})
	}
	return items
}

// URL returns the feed endpoint URL.
func (m *MockFeed) URL() string {
	return m.server.URL + "/api/search/v3/feed/search"
}

// Client returns an HTTP client trusting the server certificate.
func (m *MockFeed) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockFeed) Close() {
	m.server.Close()
}

// SetPage overrides the response of one page.
func (m *MockFeed) SetPage(page int, p MockPage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = p
}

// SetMeta overrides the pagination metadata reported on every page.
func (m *MockFeed) SetMeta(totalPages, totalCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalPages = totalPages
	m.totalCount = totalCount
}

// SetDelay applies the same delay to every configured page.
func (m *MockFeed) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n, p := range m.pages {
		p.Delay = d
		m.pages[n] = p
	}
}

// RequestCount returns the number of requests received.
func (m *MockFeed) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns the requested page numbers in arrival order.
func (m *MockFeed) Requests() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.requests...)
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockFeed) MaxInFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockFeed) LastRequestHeader() http.Header {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastHeader
}

// LastQuery returns the query of the most recent request.
func (m *MockFeed) LastQuery() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func (m *MockFeed) handle(w http.ResponseWriter, r *http.Request) {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	m.mu.Lock()
	m.requests = append(m.requests, page)
	m.lastHeader = r.Header.Clone()
	m.lastQuery = r.URL.Query()
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	resp, ok := m.pages[page]
	totalPages, totalCount, perPage := m.totalPages, m.totalCount, m.perPage
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if resp.Body != "" {
		w.Write([]byte(resp.Body))
		return
	}
	if status != http.StatusOK {
		fmt.Fprintf(w, `{"error": %q}`, http.StatusText(status))
		return
	}

	items := resp.Items
	if !ok || items == nil {
		items = []map[string]any{}
	}
	json.NewEncoder(w).Encode(map[string]any{
		"_meta": map[string]any{
			"pageCount":   totalPages,
			"totalCount":  totalCount,
			"currentPage": page,
			"perPage":     perPage,
		},
		"items": items,
	})
}
