package tameng

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ambiyansyah-risyal/tameng/internal/singleflight"
)

// pendingKeyPrefix namespaces the in-flight fetch table so pending entries
// can never collide with cached values.
const pendingKeyPrefix = "pending:"

// FetchFunc loads a value on cache miss. It runs detached from the caller's
// cancellation so an abandoned GetOrSet still populates the cache.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Hits               uint64  `json:"hits"`
	Misses             uint64  `json:"misses"`
	Errors             uint64  `json:"errors"`
	Operations         uint64  `json:"operations"`
	HitRate            float64 `json:"hitRate"`
	CircuitBreakerOpen bool    `json:"circuitBreakerOpen"`
	PendingRequests    int     `json:"pendingRequests"`
	Entries            int     `json:"entries"`
	MemoryBytes        int64   `json:"memoryBytes"`
}

// Cache composes the backing store with a circuit breaker, in-flight fetch
// coalescing, statistics and metrics. The cache is a best-effort
// optimization: store failures are absorbed (logged, counted, fed to the
// breaker) and read as misses, never surfaced to callers. The only error
// path that propagates is a failing FetchFunc inside GetOrSet.
//
// Keys are namespaced with the configured prefix before reaching the store,
// so several Cache instances can share one Store without collision.
type Cache struct {
	store     Store
	ownsStore bool
	breaker   *CircuitBreaker
	pending   *singleflight.Group

	name          string
	keyPrefix     string
	defaultTTL    time.Duration
	maxMemoryMB   int
	sweepInterval time.Duration

	hits       uint64
	misses     uint64
	errors     uint64
	operations uint64

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// NewCache constructs a Cache using the provided functional options. Without
// WithStore the cache owns a MemoryStore sized by WithMaxMemoryMB and closes
// it (stopping the sweep goroutine) on Close. A best effort validation is
// performed; call IsValid / ValidationError for errors.
func NewCache(options ...Option) *Cache {
	c := &Cache{
		pending:       singleflight.New(),
		name:          "default",
		keyPrefix:     "cache:",
		defaultTTL:    time.Hour,
		maxMemoryMB:   100,
		sweepInterval: time.Minute,
		breaker:       NewCircuitBreaker(CircuitBreakerConfig{}),
		debug:         DefaultDebugConfig(),
	}

	for _, option := range options {
		option(c)
	}

	if c.store == nil {
		c.store = NewMemoryStore(int64(c.maxMemoryMB)*1024*1024, c.sweepInterval)
		c.ownsStore = true
	}
	if ms, ok := c.store.(*MemoryStore); ok {
		if c.logger != nil {
			ms.SetLogger(c.logger, c.debug)
		}
		ms.SetMetrics(c.metrics, c.name)
	}

	if err := c.ValidateConfiguration(); err != nil {
		c.validationError = err
	}

	return c
}

func (c *Cache) namespaced(key string) string {
	return c.keyPrefix + key
}

// Get returns the cached value for key. A breaker-gated rejection or a store
// failure reads as a miss; both hit and clean-miss store reads count as
// breaker successes.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	atomic.AddUint64(&c.operations, 1)

	if !c.breaker.Allow() {
		c.logCircuitRejection("get", key)
		atomic.AddUint64(&c.misses, 1)
		c.metrics.RecordCacheMiss(c.name)
		return nil, false
	}

	value, found, err := c.store.Get(ctx, c.namespaced(key))
	if err != nil {
		c.storeFailure("get", key, err)
		atomic.AddUint64(&c.misses, 1)
		c.metrics.RecordCacheMiss(c.name)
		return nil, false
	}
	c.recordStoreSuccess()

	if !found {
		atomic.AddUint64(&c.misses, 1)
		c.metrics.RecordCacheMiss(c.name)
		return nil, false
	}

	atomic.AddUint64(&c.hits, 1)
	c.metrics.RecordCacheHit(c.name)
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Cache hit", "key", key)
	}
	return value, true
}

// Set writes value under key with the given ttl (<= 0 uses the configured
// default). Returns false without writing on breaker rejection or store
// failure.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	atomic.AddUint64(&c.operations, 1)

	if !c.breaker.Allow() {
		c.logCircuitRejection("set", key)
		return false
	}

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if err := c.store.Set(ctx, c.namespaced(key), value, ttl); err != nil {
		c.storeFailure("set", key, err)
		return false
	}
	c.recordStoreSuccess()
	c.metrics.RecordStoreSize(c.name, c.store.Len(), c.store.MemoryBytes())

	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Cache set", "key", key, "ttl", ttl, "size", len(value))
	}
	return true
}

// GetOrSet returns the cached value for key or loads it via fetch. Concurrent
// callers for the same key share a single fetch: duplicates wait on the
// owner's outcome (value or error) instead of invoking fetch again. A
// duplicate's own context can abandon the wait without stopping the fetch.
// Fetch errors propagate to every caller; the successful result is stored
// best-effort with ttl.
func (c *Cache) GetOrSet(ctx context.Context, key string, fetch FetchFunc, ttl time.Duration) ([]byte, error) {
	requestID := c.debug.RequestID()

	if value, found := c.Get(ctx, key); found {
		return value, nil
	}

	pendingKey := pendingKeyPrefix + c.namespaced(key)
	call, owner := c.pending.GetOrCreate(pendingKey)
	c.metrics.RecordPendingFetches(c.name, c.pending.Len())

	if !owner {
		c.metrics.RecordDeduplicationHit(c.name)
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Debug("Joining in-flight fetch", "requestID", requestID, "key", key)
		}
		return call.Wait(ctx)
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Fetching on cache miss", "requestID", requestID, "key", key)
	}

	// The fetch outlives the owning caller's cancellation so the result
	// still lands in the cache for the next caller.
	fetchCtx := context.WithoutCancel(ctx)

	value, err := fetch(fetchCtx)
	if err != nil {
		c.pending.Complete(pendingKey, nil, err)
		c.metrics.RecordPendingFetches(c.name, c.pending.Len())
		if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
			c.logger.Warn("Fetch failed", "requestID", requestID, "key", key, "error", err.Error())
		}
		return nil, err
	}

	c.Set(fetchCtx, key, value, ttl)
	c.pending.Complete(pendingKey, value, nil)
	c.metrics.RecordPendingFetches(c.name, c.pending.Len())
	return value, nil
}

// Delete removes key, reporting whether a live entry was deleted. Breaker
// rejections and store failures read as false.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	atomic.AddUint64(&c.operations, 1)

	if !c.breaker.Allow() {
		c.logCircuitRejection("delete", key)
		return false
	}

	present, err := c.store.Delete(ctx, c.namespaced(key))
	if err != nil {
		c.storeFailure("delete", key, err)
		return false
	}
	c.recordStoreSuccess()
	return present
}

// InvalidatePattern deletes all keys matching the glob pattern and returns
// the count deleted. Keys are matched after namespacing, and deleted one at
// a time, not atomically as a batch. Store failures read as 0.
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) int {
	atomic.AddUint64(&c.operations, 1)

	if !c.breaker.Allow() {
		c.logCircuitRejection("invalidate", pattern)
		return 0
	}

	keys, err := c.store.Keys(ctx, c.keyPrefix+pattern)
	if err != nil {
		c.storeFailure("invalidate", pattern, err)
		return 0
	}

	count := 0
	failed := false
	for _, key := range keys {
		present, err := c.store.Delete(ctx, key)
		if err != nil {
			c.storeFailure("invalidate", key, err)
			failed = true
			continue
		}
		if present {
			count++
		}
	}
	if !failed {
		c.recordStoreSuccess()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Invalidated pattern", "pattern", pattern, "deleted", count)
	}
	return count
}

// Clear removes every entry in the store, shared namespaces included.
func (c *Cache) Clear(ctx context.Context) bool {
	atomic.AddUint64(&c.operations, 1)

	if !c.breaker.Allow() {
		c.logCircuitRejection("clear", "")
		return false
	}

	if err := c.store.Clear(ctx); err != nil {
		c.storeFailure("clear", "", err)
		return false
	}
	c.recordStoreSuccess()
	return true
}

// Stats returns a snapshot of cache activity.
func (c *Cache) Stats() Stats {
	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return Stats{
		Hits:               hits,
		Misses:             misses,
		Errors:             atomic.LoadUint64(&c.errors),
		Operations:         atomic.LoadUint64(&c.operations),
		HitRate:            hitRate,
		CircuitBreakerOpen: c.breaker.State() == StateOpen,
		PendingRequests:    c.pending.Len(),
		Entries:            c.store.Len(),
		MemoryBytes:        c.store.MemoryBytes(),
	}
}

// Breaker exposes the circuit breaker guarding the store.
func (c *Cache) Breaker() *CircuitBreaker {
	return c.breaker
}

// Close releases the cache. The backing store is closed (stopping its sweep
// goroutine) only when the cache owns it.
func (c *Cache) Close() error {
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}

// IsValid reports whether configuration validation passed at construction.
func (c *Cache) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Cache) ValidationError() error {
	return c.validationError
}

// storeFailure absorbs a backing store error: it feeds the breaker, bumps
// the error stat and metric, and logs when debug output is on.
func (c *Cache) storeFailure(operation, key string, err error) {
	c.breaker.RecordFailure()
	atomic.AddUint64(&c.errors, 1)
	c.metrics.RecordCacheError(c.name, operation)
	c.metrics.RecordCircuitBreakerState(c.name, c.breaker.State())

	if c.debug != nil && c.debug.Enabled && c.debug.LogStore && c.logger != nil {
		c.logger.Warn("Store operation failed", "operation", operation, "key", key, "error", err.Error())
	}
}

func (c *Cache) recordStoreSuccess() {
	c.breaker.RecordSuccess()
	c.metrics.RecordCircuitBreakerState(c.name, c.breaker.State())
}

func (c *Cache) logCircuitRejection(operation, key string) {
	if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
		c.logger.Warn("Circuit breaker open, skipping store", "operation", operation, "key", key)
	}
}
