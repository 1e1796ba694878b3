// Package cache provides an optional Redis-backed cache for feed page bodies.
//
// A cached page lets a repeated run inside the TTL window skip the network
// round trip for that page. The cache never changes what a run writes: a hit
// yields the same body the feed returned when the entry was stored.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	u, _ := url.Parse("https://lalafo.az/api/search/v3/feed/search?category_id=1423&page=3")
//
//	doc, err := manager.GetPage(ctx, u)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the feed, then:
//		_ = manager.SetPage(ctx, u, body, http.StatusOK, 10*time.Minute)
//	}
//
// Keys are built by KeyFor from host, path and the sorted query, so the
// parameter order of u does not matter.
//
// # Metrics
//
//   - feed_cache_hits_total - Cache hits
//   - feed_cache_misses_total - Cache misses
//   - feed_cache_stored_bytes_total - Bytes written to the cache
//   - feed_cache_errors_total{operation} - get, set, delete and decode errors
package cache
