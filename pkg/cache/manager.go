package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when no live entry exists for a page.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry is returned for entries that cannot be decoded. They are evicted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager stores feed page bodies in Redis, keyed by request URL.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a page cache on top of redisClient.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{redis: redisClient}
}

// GetPage returns the cached document for the page request u.
//
// A missing or stale entry yields ErrCacheMiss. An entry whose envelope or
// body does not decode is deleted and yields ErrInvalidEntry, so the next
// lookup goes to the network.
func (m *Manager) GetPage(ctx context.Context, u *url.URL) (listing.Document, error) {
	key := KeyFor(u)

	entry, err := m.Get(ctx, key)
	if errors.Is(err, ErrInvalidEntry) {
		m.evict(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	doc, err := listing.DecodeBytes(entry.Data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		m.evict(ctx, key)
		return nil, fmt.Errorf("%w: page body: %v", ErrInvalidEntry, err)
	}

	CacheHits.Inc()
	return doc, nil
}

// SetPage stores the body of a successful page response for ttl.
// A non-positive ttl stores nothing.
func (m *Manager) SetPage(ctx context.Context, u *url.URL, body []byte, statusCode int, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return m.Set(ctx, KeyFor(u), NewEntry(body, statusCode, ttl))
}

// Get reads the raw entry for key.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	raw, err := m.redis.Get(ctx, key.String()).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	case err != nil:
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	entry := &CacheEntry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	// Redis expiry is authoritative; this catches entries written with a skewed clock.
	if entry.IsExpired() {
		CacheMisses.Inc()
		m.evict(ctx, key)
		return nil, ErrCacheMiss
	}
	return entry, nil
}

// Set writes entry under key with the entry's remaining lifetime as Redis TTL.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return errors.New("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	CacheStoredBytes.Add(float64(len(raw)))
	return nil
}

// Delete removes the entry for key.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// evict is Delete for paths that already carry an error of their own.
func (m *Manager) evict(ctx context.Context, key CacheKey) {
	_ = m.Delete(ctx, key)
}
