package tameng

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ambiyansyah-risyal/tameng/internal/glob"
)

// storeEntryOverhead approximates the per-entry bookkeeping cost in bytes.
// Size accounting is an estimate, not an exact measure.
const storeEntryOverhead = 64

// Sentinel TTL values returned by Store.TTL.
const (
	// TTLAbsent means the key does not exist.
	TTLAbsent = -2 * time.Second
	// TTLExpired means the key is past its expiry but not yet swept.
	TTLExpired = -1 * time.Second
)

// Store is the backing key/value contract the cache orchestrator delegates
// to. MemoryStore is the in-process implementation; RemoteStore is the
// external placeholder. A ttl <= 0 on Set stores the entry without expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	Clear(ctx context.Context) error
	Len() int
	MemoryBytes() int64
	Close() error
}

type storeEntry struct {
	value       []byte
	createdAt   time.Time
	expiresAt   time.Time // zero means no expiry
	accessCount uint64
	size        int64
}

func (e *storeEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is a bounded in-process TTL store. Entries expire lazily on
// read and eagerly via a periodic sweep goroutine owned by the store's
// lifecycle. When a write would push the total estimated size past the
// configured ceiling, entries are evicted oldest-createdAt first
// (insertion-recency LRU, not access recency).
type MemoryStore struct {
	mu        sync.RWMutex
	entries   map[string]*storeEntry
	maxBytes  int64
	usedBytes int64
	closed    bool

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
	closeOnce     sync.Once

	evictions uint64

	logger      Logger
	debug       *DebugConfig
	metrics     *MetricsCollector
	metricsName string
}

// NewMemoryStore creates a store bounded to maxBytes (0 = unbounded) and
// starts its sweep goroutine when sweepInterval is positive. Close stops
// the sweeper.
func NewMemoryStore(maxBytes int64, sweepInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries:       make(map[string]*storeEntry),
		maxBytes:      maxBytes,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
		sweepDone:     make(chan struct{}),
	}

	if sweepInterval > 0 {
		go s.sweepLoop()
	} else {
		close(s.sweepDone)
	}

	return s
}

// SetLogger attaches a logger and debug config for store-level output.
func (s *MemoryStore) SetLogger(logger Logger, debug *DebugConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	s.debug = debug
}

// SetMetrics attaches a collector so capacity evictions are counted under
// the given cache name.
func (s *MemoryStore) SetMetrics(metrics *MetricsCollector, cache string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = metrics
	s.metricsName = cache
}

// Get returns the value for key, bumping its access count. Expired entries
// are removed and read as absent.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, ErrStoreClosed
	}
	e, ok := s.entries[key]
	if ok && !e.expired(time.Now()) {
		atomic.AddUint64(&e.accessCount, 1)
		val := e.value
		s.mu.RUnlock()
		return val, true, nil
	}
	s.mu.RUnlock()

	if ok {
		s.removeExpired(key, e)
	}
	return nil, false, nil
}

// Set stores value under key. If the projected total size exceeds the
// ceiling, oldest entries are evicted first; a value too large for an empty
// store is rejected with ErrValueTooLarge.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	size := int64(len(value)) + storeEntryOverhead
	if s.maxBytes > 0 && size > s.maxBytes {
		return ErrValueTooLarge
	}

	now := time.Now()
	e := &storeEntry{
		value:     value,
		createdAt: now,
		size:      size,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if old, ok := s.entries[key]; ok {
		s.usedBytes -= old.size
		delete(s.entries, key)
	}

	if s.maxBytes > 0 {
		for s.usedBytes+size > s.maxBytes {
			if !s.evictOldestLocked() {
				break
			}
		}
	}

	s.entries[key] = e
	s.usedBytes += size
	return nil
}

// Delete removes key, reporting whether a live entry was present.
func (s *MemoryStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	s.removeLocked(key, e)
	return !e.expired(time.Now()), nil
}

// Exists reports whether key holds a live entry.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false, ErrStoreClosed
	}
	e, ok := s.entries[key]
	live := ok && !e.expired(time.Now())
	s.mu.RUnlock()

	if ok && !live {
		s.removeExpired(key, e)
	}
	return live, nil
}

// Keys returns all live keys matching the glob pattern (`*` any run, `?`
// exactly one character, anchored at both ends).
func (s *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	re, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	now := time.Now()
	var keys []string
	for key, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if re.MatchString(key) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// TTL returns the remaining lifetime for key: TTLAbsent when missing,
// TTLExpired when past expiry but not yet swept, 0 for entries without
// expiry.
func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	e, ok := s.entries[key]
	if !ok {
		return TTLAbsent, nil
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	remaining := time.Until(e.expiresAt)
	if remaining <= 0 {
		return TTLExpired, nil
	}
	return remaining, nil
}

// IncrBy adjusts the integer stored at key by delta, treating absent or
// expired keys as 0. Counters created here carry no expiry; existing
// expiries are preserved.
func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	now := time.Now()
	var current int64
	var expiresAt time.Time
	createdAt := now

	if e, ok := s.entries[key]; ok {
		if e.expired(now) {
			s.removeLocked(key, e)
		} else {
			parsed, err := strconv.ParseInt(string(e.value), 10, 64)
			if err != nil {
				return 0, ErrNotNumeric
			}
			current = parsed
			expiresAt = e.expiresAt
			createdAt = e.createdAt
			s.usedBytes -= e.size
			delete(s.entries, key)
		}
	}

	next := current + delta
	value := []byte(strconv.FormatInt(next, 10))
	e := &storeEntry{
		value:     value,
		createdAt: createdAt,
		expiresAt: expiresAt,
		size:      int64(len(value)) + storeEntryOverhead,
	}
	s.entries[key] = e
	s.usedBytes += e.size
	return next, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.entries = make(map[string]*storeEntry)
	s.usedBytes = 0
	return nil
}

// Len returns the number of entries, expired-but-unswept included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// MemoryBytes returns the estimated total size of stored entries.
func (s *MemoryStore) MemoryBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usedBytes
}

// Evictions returns the number of capacity evictions since creation.
func (s *MemoryStore) Evictions() uint64 {
	return atomic.LoadUint64(&s.evictions)
}

// Close stops the sweep goroutine, waiting briefly for it to acknowledge.
// Subsequent operations return ErrStoreClosed. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		close(s.stopSweep)
		select {
		case <-s.sweepDone:
		case <-time.After(time.Second):
		}
	})
	return nil
}

func (s *MemoryStore) sweepLoop() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *MemoryStore) sweepExpired() {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			s.removeLocked(key, e)
			removed++
		}
	}

	if removed > 0 && s.debug != nil && s.debug.Enabled && s.debug.LogStore && s.logger != nil {
		s.logger.Debug("Sweep removed expired entries", "removed", removed, "remaining", len(s.entries))
	}
}

// removeExpired drops the entry for key only if it is still the one we saw
// under the read lock.
func (s *MemoryStore) removeExpired(key string, seen *storeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur == seen {
		s.removeLocked(key, cur)
	}
}

func (s *MemoryStore) removeLocked(key string, e *storeEntry) {
	delete(s.entries, key)
	s.usedBytes -= e.size
}

// evictOldestLocked removes the entry with the oldest createdAt. Returns
// false when the store is empty.
func (s *MemoryStore) evictOldestLocked() bool {
	var oldestKey string
	var oldest *storeEntry
	for key, e := range s.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) {
			oldestKey = key
			oldest = e
		}
	}
	if oldest == nil {
		return false
	}

	s.removeLocked(oldestKey, oldest)
	atomic.AddUint64(&s.evictions, 1)
	s.metrics.RecordEviction(s.metricsName)

	if s.debug != nil && s.debug.Enabled && s.debug.LogStore && s.logger != nil {
		s.logger.Debug("Evicted entry over memory ceiling", "key", oldestKey, "size", oldest.size)
	}
	return true
}
