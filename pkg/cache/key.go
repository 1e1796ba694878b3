package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key in Redis.
const KeyPrefix = "feed:page"

// CacheKey identifies one cached feed page.
type CacheKey struct {
	// Endpoint is host + path of the feed (scheme is ignored).
	Endpoint string

	// QueryParams are the request parameters, including the page number.
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: feed:page:endpoint:query1=val1:query2=val2
//
// Example:
//
//	feed:page:lalafo.az/api/search/v3/feed/search:category_id=1423:page=2
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.TrimPrefix(k.Endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.Trim(endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// KeyFor builds the key for a fully resolved request URL.
func KeyFor(u *url.URL) CacheKey {
	return CacheKey{
		Endpoint:    u.Host + u.Path,
		QueryParams: u.Query(),
	}
}
