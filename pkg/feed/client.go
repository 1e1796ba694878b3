// Package feed provides the page fetcher for the marketplace search feed:
// one GET per page, typed failure classification and an optional Redis cache.
package feed

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/cache"
	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the Lalafo search feed endpoint.
const DefaultBaseURL = "https://lalafo.az/api/search/v3/feed/search"

// Prometheus metrics for feed requests.
var (
	feedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_requests_total",
		Help: "Total feed page requests by HTTP status (or cache / transport_error)",
	}, []string{"status"})

	feedRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_request_duration_seconds",
		Help:    "Feed page request duration in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	feedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_errors_total",
		Help: "Total feed page failures by class",
	}, []string{"class"})
)

// Client fetches single feed pages.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// Config holds the fetcher configuration. It is fixed for the whole run.
type Config struct {
	// BaseURL of the feed endpoint
	BaseURL string

	// Params are sent with every request; "page" is added per call
	Params url.Values

	// Headers are sent with every request
	Headers http.Header

	// InsecureSkipVerify disables TLS certificate verification
	InsecureSkipVerify bool

	// Timeout bounds one request including the body read
	Timeout time.Duration

	// MaxIdleConns is the idle connection pool size per host (usually the concurrency budget)
	MaxIdleConns int

	// Cache is optional; nil disables caching
	Cache    *cache.Manager
	CacheTTL time.Duration
}

// DefaultParams returns the query parameters of a category feed.
func DefaultParams(categoryID, perPage int) url.Values {
	return url.Values{
		"category_id":      []string{strconv.Itoa(categoryID)},
		"expand":           []string{"url"},
		"per-page":         []string{strconv.Itoa(perPage)},
		"with_feed_banner": []string{"true"},
	}
}

// DefaultHeaders returns the browser-like header set the feed expects.
func DefaultHeaders() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-GB,en-US;q=0.9,en;q=0.8,ru;q=0.7,az;q=0.6")
	h.Set("Country-Id", "13")
	h.Set("Device", "pc")
	h.Set("Dnt", "1")
	h.Set("Language", "az_AZ")
	h.Set("Referer", "https://lalafo.az/azerbaijan/dom-i-sad")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 "+
		"(KHTML, like Gecko) Chrome/145.0.0.0 Safari/537.36")
	return h
}

// DefaultConfig returns the configuration used against the live feed.
func DefaultConfig() Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		Params:             DefaultParams(1423, 20),
		Headers:            DefaultHeaders(),
		InsecureSkipVerify: true,
		Timeout:            30 * time.Second,
		MaxIdleConns:       5,
	}
}

// New creates a new feed client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.Cache != nil && cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("cache_ttl must be > 0 when a cache is configured")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConns
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // the feed is scraped with verification off
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		cache:  cfg.Cache,
		config: cfg,
		logger: log.With().Str("component", "feed-client").Logger(),
	}, nil
}

// FetchPage issues one GET for page and returns its decoded document, or a
// classified failure. It never retries.
func (c *Client) FetchPage(ctx context.Context, page int) PageResult {
	if page < 1 {
		feedErrorsTotal.WithLabelValues(string(ErrorClassInvalid)).Inc()
		return Failed(page, &FetchError{
			Class:   ErrorClassInvalid,
			Message: fmt.Sprintf("page %d", page),
			Err:     ErrInvalidPage,
		})
	}

	u := c.PageURL(page)

	if c.cache != nil {
		doc, err := c.cache.GetPage(ctx, u)
		if err == nil {
			feedRequestsTotal.WithLabelValues("cache").Inc()
			c.logger.Debug().Int("page", page).Msg("Feed page served from cache")
			return PageResult{Page: page, Document: doc}
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Int("page", page).Msg("Cache lookup failed, fetching")
		}
	}

	startTime := time.Now()
	defer func() {
		feedRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		feedErrorsTotal.WithLabelValues(string(ErrorClassInvalid)).Inc()
		return Failed(page, &FetchError{Class: ErrorClassInvalid, Message: "create request", Err: err})
	}
	req.Header = c.config.Headers.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}

	c.logger.Debug().
		Int("page", page).
		Str("url", u.String()).
		Msg("Fetching feed page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		feedErrorsTotal.WithLabelValues(string(ErrorClassTransport)).Inc()
		feedRequestsTotal.WithLabelValues("transport_error").Inc()
		c.logger.Debug().Err(err).Int("page", page).Msg("Feed request failed")
		return Failed(page, transportError(err))
	}
	defer resp.Body.Close()

	feedRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		feedErrorsTotal.WithLabelValues(string(ErrorClassHTTPStatus)).Inc()
		c.logger.Debug().
			Int("page", page).
			Int("status", resp.StatusCode).
			Msg("Feed returned error status")
		return Failed(page, statusError(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		feedErrorsTotal.WithLabelValues(string(ErrorClassTransport)).Inc()
		return Failed(page, transportError(fmt.Errorf("read body: %w", err)))
	}

	doc, err := listing.DecodeBytes(body)
	if err != nil {
		feedErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return Failed(page, &FetchError{
			Class:      ErrorClassDecode,
			StatusCode: resp.StatusCode,
			Err:        err,
		})
	}

	if c.cache != nil {
		if err := c.cache.SetPage(ctx, u, body, resp.StatusCode, c.config.CacheTTL); err != nil {
			c.logger.Warn().Err(err).Int("page", page).Msg("Failed to cache feed page")
		}
	}

	return PageResult{Page: page, Document: doc}
}

// PageURL resolves the request URL for page.
func (c *Client) PageURL(page int) *url.URL {
	u, _ := url.Parse(c.config.BaseURL)

	q := u.Query()
	for k, vs := range c.config.Params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	return u
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
