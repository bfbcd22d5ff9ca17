package tameng

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// failingStore errors on every operation, simulating a broken backend.
type failingStore struct {
	err  error
	gets int64
	sets int64
}

func (f *failingStore) Get(context.Context, string) ([]byte, bool, error) {
	atomic.AddInt64(&f.gets, 1)
	return nil, false, f.err
}

func (f *failingStore) Set(context.Context, string, []byte, time.Duration) error {
	atomic.AddInt64(&f.sets, 1)
	return f.err
}

func (f *failingStore) Delete(context.Context, string) (bool, error) { return false, f.err }
func (f *failingStore) Exists(context.Context, string) (bool, error) { return false, f.err }
func (f *failingStore) Keys(context.Context, string) ([]string, error) {
	return nil, f.err
}
func (f *failingStore) TTL(context.Context, string) (time.Duration, error) { return 0, f.err }
func (f *failingStore) IncrBy(context.Context, string, int64) (int64, error) {
	return 0, f.err
}
func (f *failingStore) Clear(context.Context) error { return f.err }
func (f *failingStore) Len() int                    { return 0 }
func (f *failingStore) MemoryBytes() int64          { return 0 }
func (f *failingStore) Close() error                { return nil }

func newTestCache(t *testing.T, options ...Option) *Cache {
	t.Helper()
	options = append([]Option{WithSweepInterval(0)}, options...)
	c := NewCache(options...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if !c.Set(ctx, "k1", []byte("v1"), time.Minute) {
		t.Fatal("Expected Set to succeed")
	}

	val, found := c.Get(ctx, "k1")
	if !found {
		t.Fatal("Expected key to be found")
	}
	if !bytes.Equal(val, []byte("v1")) {
		t.Errorf("Expected v1, got %q", val)
	}
}

func TestCacheSetGetTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), 30*time.Millisecond)

	if _, found := c.Get(ctx, "k1"); !found {
		t.Fatal("Expected key before TTL elapsed")
	}

	time.Sleep(50 * time.Millisecond)

	if _, found := c.Get(ctx, "k1"); found {
		t.Error("Expected key absent after TTL elapsed")
	}
}

func TestCacheDefaultTTL(t *testing.T) {
	c := newTestCache(t, WithDefaultTTL(30*time.Millisecond))
	ctx := context.Background()

	// ttl <= 0 uses the configured default.
	c.Set(ctx, "k1", []byte("v1"), 0)

	time.Sleep(50 * time.Millisecond)
	if _, found := c.Get(ctx, "k1"); found {
		t.Error("Expected default TTL to apply")
	}
}

func TestCacheKeyNamespacing(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer func() { _ = store.Close() }()

	a := newTestCache(t, WithStore(store), WithKeyPrefix("a:"))
	b := newTestCache(t, WithStore(store), WithKeyPrefix("b:"))
	ctx := context.Background()

	a.Set(ctx, "k", []byte("from-a"), time.Minute)
	b.Set(ctx, "k", []byte("from-b"), time.Minute)

	valA, _ := a.Get(ctx, "k")
	valB, _ := b.Get(ctx, "k")

	if string(valA) != "from-a" {
		t.Errorf("Expected from-a, got %q", valA)
	}
	if string(valB) != "from-b" {
		t.Errorf("Expected from-b, got %q", valB)
	}
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)

	if !c.Delete(ctx, "k1") {
		t.Error("Expected Delete to report entry present")
	}
	if c.Delete(ctx, "k1") {
		t.Error("Expected second Delete to report entry absent")
	}
}

func TestCacheInvalidatePattern(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "user:1", []byte("a"), time.Minute)
	c.Set(ctx, "user:2", []byte("b"), time.Minute)
	c.Set(ctx, "order:1", []byte("c"), time.Minute)

	count := c.InvalidatePattern(ctx, "user:*")
	if count != 2 {
		t.Errorf("Expected 2 deletions, got %d", count)
	}

	if _, found := c.Get(ctx, "user:1"); found {
		t.Error("Expected user:1 to be invalidated")
	}
	if _, found := c.Get(ctx, "user:2"); found {
		t.Error("Expected user:2 to be invalidated")
	}
	if _, found := c.Get(ctx, "order:1"); !found {
		t.Error("Expected order:1 to survive")
	}
}

func TestCacheClear(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Set(ctx, "k2", []byte("v2"), time.Minute)

	if !c.Clear(ctx) {
		t.Fatal("Expected Clear to succeed")
	}
	if _, found := c.Get(ctx, "k1"); found {
		t.Error("Expected k1 gone after Clear")
	}
}

func TestCacheStoreFailuresSwallowed(t *testing.T) {
	c := newTestCache(t, WithStore(&failingStore{err: errors.New("backend down")}))
	ctx := context.Background()

	// Failures never propagate: Get reads as miss, Set as no-op.
	if _, found := c.Get(ctx, "k1"); found {
		t.Error("Expected miss from failing store")
	}
	if c.Set(ctx, "k1", []byte("v1"), time.Minute) {
		t.Error("Expected Set=false from failing store")
	}
	if c.Delete(ctx, "k1") {
		t.Error("Expected Delete=false from failing store")
	}
	if c.InvalidatePattern(ctx, "*") != 0 {
		t.Error("Expected InvalidatePattern=0 from failing store")
	}

	stats := c.Stats()
	if stats.Errors == 0 {
		t.Error("Expected error stat to count store failures")
	}
}

func TestCacheBreakerOpensAndSkipsStore(t *testing.T) {
	store := &failingStore{err: errors.New("backend down")}
	c := newTestCache(t, WithStore(store))
	ctx := context.Background()

	// 5 consecutive store failures open the breaker.
	for i := 0; i < 5; i++ {
		c.Get(ctx, "k")
	}

	if c.Breaker().State() != StateOpen {
		t.Fatalf("Expected open breaker after 5 failures, got %v", c.Breaker().State())
	}

	before := atomic.LoadInt64(&store.gets)
	c.Get(ctx, "k")
	c.Set(ctx, "k", []byte("v"), time.Minute)

	if atomic.LoadInt64(&store.gets) != before {
		t.Error("Expected Get not to touch the store while breaker open")
	}
	if atomic.LoadInt64(&store.sets) != 0 {
		t.Error("Expected Set not to touch the store while breaker open")
	}

	stats := c.Stats()
	if !stats.CircuitBreakerOpen {
		t.Error("Expected stats to report open breaker")
	}
}

func TestCacheBreakerRecovers(t *testing.T) {
	store := &failingStore{err: errors.New("backend down")}
	c := newTestCache(t,
		WithStore(store),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: 2,
			RecoveryTimeout:  40 * time.Millisecond,
			SuccessThreshold: 3,
		}),
	)
	ctx := context.Background()

	c.Get(ctx, "k")
	c.Get(ctx, "k")
	if c.Breaker().State() != StateOpen {
		t.Fatalf("Expected open breaker, got %v", c.Breaker().State())
	}

	// Backend comes back; after the recovery timeout the next call probes
	// half-open and successes close the breaker again.
	store.err = nil
	time.Sleep(50 * time.Millisecond)

	c.Get(ctx, "k")
	if c.Breaker().State() != StateHalfOpen {
		t.Fatalf("Expected half-open after probe, got %v", c.Breaker().State())
	}

	c.Get(ctx, "k")
	c.Get(ctx, "k")
	if c.Breaker().State() != StateClosed {
		t.Errorf("Expected closed after 3 successes, got %v", c.Breaker().State())
	}
}

func TestCacheStats(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Get(ctx, "k1")
	c.Get(ctx, "k1")
	c.Get(ctx, "missing")

	stats := c.Stats()
	if stats.Hits != 2 {
		t.Errorf("Expected 2 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.Operations != 4 {
		t.Errorf("Expected 4 operations, got %d", stats.Operations)
	}
	wantRate := 2.0 / 3.0
	if stats.HitRate < wantRate-0.001 || stats.HitRate > wantRate+0.001 {
		t.Errorf("Expected hit rate ~%.3f, got %.3f", wantRate, stats.HitRate)
	}
	if stats.Entries != 1 {
		t.Errorf("Expected 1 entry, got %d", stats.Entries)
	}
	if stats.CircuitBreakerOpen {
		t.Error("Expected closed breaker")
	}
	if stats.PendingRequests != 0 {
		t.Errorf("Expected 0 pending requests, got %d", stats.PendingRequests)
	}
}

func TestCacheRemoteStoreDegrades(t *testing.T) {
	c := newTestCache(t, WithRemoteStore("cache.internal:6379"))
	ctx := context.Background()

	// The remote variant is selectable but inert: everything degrades to a
	// miss or no-op.
	if c.Set(ctx, "k1", []byte("v1"), time.Minute) {
		t.Error("Expected Set=false on remote store")
	}
	if _, found := c.Get(ctx, "k1"); found {
		t.Error("Expected miss on remote store")
	}

	// GetOrSet still serves the caller through the fetch path.
	val, err := c.GetOrSet(ctx, "k1", func(context.Context) ([]byte, error) {
		return []byte("fetched"), nil
	}, time.Minute)
	if err != nil {
		t.Fatalf("GetOrSet() returned error: %v", err)
	}
	if string(val) != "fetched" {
		t.Errorf("Expected fetched, got %q", val)
	}
}

func TestCacheValidation(t *testing.T) {
	c := newTestCache(t)
	if !c.IsValid() {
		t.Errorf("Expected default configuration to validate, got %v", c.ValidationError())
	}

	bad := newTestCache(t, WithDefaultTTL(-time.Second))
	if bad.IsValid() {
		t.Error("Expected negative TTL to fail validation")
	}

	var reqErr *RequestError
	if !errors.As(bad.ValidationError(), &reqErr) || reqErr.Type != ErrorTypeValidation {
		t.Errorf("Expected validation RequestError, got %v", bad.ValidationError())
	}
}

func TestCacheCloseOwnedStore(t *testing.T) {
	c := NewCache(WithSweepInterval(20 * time.Millisecond))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	// The owned store is closed with the cache.
	if _, _, err := c.store.Get(context.Background(), "k"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Expected ErrStoreClosed after cache Close, got %v", err)
	}
}

func TestCacheCloseInjectedStoreStaysOpen(t *testing.T) {
	store := NewMemoryStore(0, 0)
	defer func() { _ = store.Close() }()

	c := NewCache(WithStore(store))
	_ = c.Close()

	if err := store.Set(context.Background(), "k", []byte("v"), time.Minute); err != nil {
		t.Errorf("Expected injected store to stay open, got %v", err)
	}
}

// partialDeleteStore lists fixed keys and fails deletes selectively, while
// plain reads fail outright.
type partialDeleteStore struct {
	listKeys []string
	failKeys map[string]bool
}

func (s *partialDeleteStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (s *partialDeleteStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *partialDeleteStore) Delete(_ context.Context, key string) (bool, error) {
	if s.failKeys[key] {
		return false, errors.New("delete failed")
	}
	return true, nil
}

func (s *partialDeleteStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (s *partialDeleteStore) Keys(context.Context, string) ([]string, error) {
	return s.listKeys, nil
}
func (s *partialDeleteStore) TTL(context.Context, string) (time.Duration, error) {
	return TTLAbsent, nil
}
func (s *partialDeleteStore) IncrBy(context.Context, string, int64) (int64, error) { return 0, nil }
func (s *partialDeleteStore) Clear(context.Context) error                          { return nil }
func (s *partialDeleteStore) Len() int                                             { return 0 }
func (s *partialDeleteStore) MemoryBytes() int64                                   { return 0 }
func (s *partialDeleteStore) Close() error                                         { return nil }

func TestInvalidatePatternPartialFailureNotBreakerSuccess(t *testing.T) {
	store := &partialDeleteStore{
		listKeys: []string{"cache:user:1", "cache:user:2"},
		failKeys: map[string]bool{"cache:user:2": true},
	}
	c := newTestCache(t, WithStore(store), WithCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  20 * time.Millisecond,
		SuccessThreshold: 1,
	}))
	ctx := context.Background()

	// Trip the breaker with a failing read.
	c.Get(ctx, "k1")
	if got := c.Breaker().State(); got != StateOpen {
		t.Fatalf("Expected breaker open, got %v", got)
	}

	time.Sleep(30 * time.Millisecond)

	// The half-open probe deletes one key and fails the other; the batch
	// must not count as a breaker success.
	if got := c.InvalidatePattern(ctx, "user:*"); got != 1 {
		t.Errorf("Expected 1 deleted, got %d", got)
	}
	if got := c.Breaker().State(); got != StateOpen {
		t.Errorf("Expected partial failure to reopen the breaker, got %v", got)
	}

	time.Sleep(30 * time.Millisecond)

	// A fully clean batch closes it again.
	store.failKeys = nil
	if got := c.InvalidatePattern(ctx, "user:*"); got != 2 {
		t.Errorf("Expected 2 deleted, got %d", got)
	}
	if got := c.Breaker().State(); got != StateClosed {
		t.Errorf("Expected clean batch to close the breaker, got %v", got)
	}
}
