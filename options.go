package tameng

import (
	"fmt"
	"time"
)

// Option represents a Cache configuration option
type Option func(*Cache)

// LimiterOption represents a RateLimiter configuration option
type LimiterOption func(*RateLimiter)

// WithDefaultTTL sets the TTL applied when Set/GetOrSet receive ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.defaultTTL = ttl
	}
}

// WithMaxMemoryMB sets the owned store's memory ceiling in megabytes.
func WithMaxMemoryMB(mb int) Option {
	return func(c *Cache) {
		c.maxMemoryMB = mb
	}
}

// WithKeyPrefix sets the namespace prepended to every key before it reaches
// the store.
func WithKeyPrefix(prefix string) Option {
	return func(c *Cache) {
		c.keyPrefix = prefix
	}
}

// WithCacheName sets the instance name used in metrics labels.
func WithCacheName(name string) Option {
	return func(c *Cache) {
		c.name = name
	}
}

// WithStore injects a backing store. The cache does not close injected
// stores; the caller owns their lifecycle.
func WithStore(store Store) Option {
	return func(c *Cache) {
		c.store = store
		c.ownsStore = false
	}
}

// WithRemoteStore selects the external store placeholder. Every operation
// on it fails and is absorbed, leaving the cache a pass-through until a
// real protocol exists.
func WithRemoteStore(addr string) Option {
	return func(c *Cache) {
		c.store = NewRemoteStore(addr)
		c.ownsStore = true
	}
}

// WithSweepInterval sets how often the owned store sweeps expired entries.
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Cache) {
		c.sweepInterval = interval
	}
}

// WithCircuitBreaker sets the circuit breaker configuration
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Cache) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Cache) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Cache) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Cache) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Cache) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger
func WithSimpleLogger() Option {
	return func(c *Cache) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Cache) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// WithLimiterLogger sets a custom logger for limiter debug output.
func WithLimiterLogger(logger Logger) LimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithLimiterSimpleLogger enables limiter debug logging on a console logger.
func WithLimiterSimpleLogger() LimiterOption {
	return func(rl *RateLimiter) {
		if rl.debug == nil {
			rl.debug = DefaultDebugConfig()
		}
		rl.debug.Enabled = true
		rl.logger = NewSimpleLogger()
	}
}

// WithLimiterDebug enables limiter debug logging.
func WithLimiterDebug() LimiterOption {
	return func(rl *RateLimiter) {
		if rl.debug == nil {
			rl.debug = DefaultDebugConfig()
		}
		rl.debug.Enabled = true
	}
}

// WithLimiterDebugConfig sets custom limiter debug configuration.
func WithLimiterDebugConfig(config *DebugConfig) LimiterOption {
	return func(rl *RateLimiter) {
		rl.debug = config
	}
}

// WithLimiterMetrics enables Prometheus metrics on the limiter.
func WithLimiterMetrics() LimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = NewMetricsCollector()
	}
}

// WithLimiterMetricsCollector sets a custom metrics collector on the
// limiter; share one collector between cache and limiter to keep a single
// registry.
func WithLimiterMetricsCollector(collector *MetricsCollector) LimiterOption {
	return func(rl *RateLimiter) {
		rl.metrics = collector
	}
}

// WithKeyCooldown overrides how long rate-limited credentials stay blocked.
func WithKeyCooldown(cooldown time.Duration) LimiterOption {
	return func(rl *RateLimiter) {
		if cooldown > 0 {
			rl.keyCooldown = cooldown
		}
	}
}

// WithRetryBudget attaches a sliding-window retry budget to the limiter.
func WithRetryBudget(maxRetries int, window time.Duration) LimiterOption {
	return func(rl *RateLimiter) {
		rl.retryBudget = NewRetryBudget(maxRetries, window)
	}
}

// ValidateConfiguration validates the cache configuration and returns an
// error collecting every problem found.
func (c *Cache) ValidateConfiguration() error {
	var problems []string

	if c.defaultTTL <= 0 {
		problems = append(problems, "defaultTTL must be positive")
	}
	if c.maxMemoryMB <= 0 {
		problems = append(problems, "maxMemoryMB must be positive")
	}
	if c.sweepInterval < 0 {
		problems = append(problems, "sweepInterval must be non-negative")
	}
	if c.store == nil {
		problems = append(problems, "store cannot be nil")
	}

	if c.breaker != nil {
		if c.breaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.breaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.breaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuitBreaker SuccessThreshold must be positive")
		}
	} else {
		problems = append(problems, "circuitBreaker cannot be nil")
	}

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	if c.defaultTTL > 24*time.Hour {
		problems = append(problems, "defaultTTL > 24h may cause stale data issues")
	}

	if len(problems) > 0 {
		return &RequestError{
			Type:      ErrorTypeValidation,
			Message:   "configuration validation failed",
			Timestamp: time.Now(),
			Cause:     fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}
