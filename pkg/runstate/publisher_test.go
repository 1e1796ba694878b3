package runstate

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestMetricsPublisher(t *testing.T) {
	s := New("metrics")
	s.Plan(10, 200, 7)
	s.RecordWritten(20)
	s.RecordWritten(20)
	s.RecordEmpty()
	s.RecordFailed()

	if err := (MetricsPublisher{}).Publish(context.Background(), s); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if got := testutil.ToFloat64(runPagesTotal); got != 7 {
		t.Errorf("pages_to_fetch = %v, want 7", got)
	}
	if got := testutil.ToFloat64(runPagesProcessed.WithLabelValues("written")); got != 2 {
		t.Errorf("written = %v, want 2", got)
	}
	if got := testutil.ToFloat64(runPagesProcessed.WithLabelValues("empty")); got != 1 {
		t.Errorf("empty = %v, want 1", got)
	}
	if got := testutil.ToFloat64(runPagesProcessed.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(runListingsWritten); got != 40 {
		t.Errorf("listings = %v, want 40", got)
	}
}

type recordingPublisher struct {
	calls int
	err   error
}

func (r *recordingPublisher) Publish(context.Context, RunState) error {
	r.calls++
	return r.err
}

func TestMulti_Publish(t *testing.T) {
	a := &recordingPublisher{err: errors.New("redis down")}
	b := &recordingPublisher{}

	err := Multi{a, b}.Publish(context.Background(), New("multi"))

	if err == nil || err.Error() != "redis down" {
		t.Errorf("Publish() error = %v, want redis down", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("calls = %d/%d, every publisher should be called once", a.calls, b.calls)
	}
}

func TestRedisPublisher_PublishAndLoad(t *testing.T) {
	client := setupTestRedis(t)
	p := NewRedisPublisher(client, zerolog.Nop())
	ctx := context.Background()

	s := New("run-42")
	s.Plan(3, 60, 3)
	s.RecordWritten(20)

	if err := p.Publish(ctx, s); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	loaded, err := p.Load(ctx, "run-42")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Phase != PhaseDraining || loaded.ListingsWritten != 20 || loaded.TotalPages != 3 {
		t.Errorf("Load() = %+v", loaded)
	}

	latest, err := p.Load(ctx, "")
	if err != nil {
		t.Fatalf("Load(latest) error = %v", err)
	}
	if latest.RunID != "run-42" {
		t.Errorf("latest RunID = %q, want run-42", latest.RunID)
	}

	ttl := client.TTL(ctx, RedisKeyRunPrefix+"run-42").Val()
	if ttl <= 0 || ttl > DefaultStateTTL {
		t.Errorf("TTL = %v, want within (0, %v]", ttl, DefaultStateTTL)
	}
}

func TestRedisPublisher_LoadMissing(t *testing.T) {
	client := setupTestRedis(t)
	p := NewRedisPublisher(client, zerolog.Nop())

	if _, err := p.Load(context.Background(), "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Load() error = %v, want ErrRunNotFound", err)
	}
	if _, err := p.Load(context.Background(), ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Load(latest) error = %v, want ErrRunNotFound", err)
	}
}
