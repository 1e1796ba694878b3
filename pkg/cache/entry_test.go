package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	before := time.Now()
	entry := NewEntry([]byte(`{"items":[]}`), http.StatusOK, 10*time.Minute)

	if string(entry.Data) != `{"items":[]}` {
		t.Errorf("Data = %s", entry.Data)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", entry.StatusCode)
	}
	if entry.CachedAt.Before(before) {
		t.Error("CachedAt should be set to now")
	}
	if ttl := entry.TTL(); ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want about 10m", ttl)
	}
}

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{
			name:    "expired entry",
			expires: time.Now().Add(-1 * time.Hour),
			want:    true,
		},
		{
			name:    "valid entry",
			expires: time.Now().Add(1 * time.Hour),
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCacheEntry_TTL_Expired(t *testing.T) {
	entry := NewEntry(nil, http.StatusOK, -time.Minute)
	if got := entry.TTL(); got != 0 {
		t.Errorf("TTL() = %v, want 0", got)
	}
}
