package tameng

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the cache and rate
// limiter. All record methods are safe on a nil receiver so callers never
// need to guard instrumentation sites.
type MetricsCollector struct {
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec

	storeEntries *prometheus.GaugeVec
	storeBytes   *prometheus.GaugeVec
	evictions    *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	pendingFetches    *prometheus.GaugeVec
	deduplicationHits *prometheus.CounterVec

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	rotationsTotal  *prometheus.CounterVec
	blockedKeys     *prometheus.GaugeVec
	throttleWaits   *prometheus.CounterVec

	retryBudgetExceeded *prometheus.CounterVec

	registerer prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	mc := &MetricsCollector{
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),
		cacheErrors: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_cache_errors_total",
				Help: "Total number of swallowed backing store errors",
			},
			[]string{"cache", "operation"},
		),
		storeEntries: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tameng_store_entries",
				Help: "Current number of entries in the backing store",
			},
			[]string{"cache"},
		),
		storeBytes: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tameng_store_bytes",
				Help: "Estimated size of the backing store in bytes",
			},
			[]string{"cache"},
		),
		evictions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_store_evictions_total",
				Help: "Total number of capacity evictions",
			},
			[]string{"cache"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tameng_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		pendingFetches: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tameng_pending_fetches",
				Help: "Number of in-flight cache-miss fetches",
			},
			[]string{"cache"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_deduplication_hits_total",
				Help: "Total number of callers that joined an in-flight fetch",
			},
			[]string{"cache"},
		),
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_requests_total",
				Help: "Total number of rate-limited requests by outcome",
			},
			[]string{"provider", "endpoint", "outcome"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tameng_request_duration_seconds",
				Help:    "Duration of rate-limited requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"provider", "endpoint"},
		),
		rotationsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_key_rotations_total",
				Help: "Total number of credential rotations after rate limiting",
			},
			[]string{"provider"},
		),
		blockedKeys: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tameng_blocked_keys",
				Help: "Current number of credentials in cooldown",
			},
			[]string{"provider"},
		),
		throttleWaits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_throttle_waits_total",
				Help: "Total number of requests delayed by an endpoint throttle",
			},
			[]string{"endpoint"},
		),
		retryBudgetExceeded: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tameng_retry_budget_exceeded_total",
				Help: "Total number of times the retry budget was exhausted",
			},
			[]string{"provider"},
		),
		registerer: registry,
	}

	return mc
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(cache string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(cache string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordCacheError increments the swallowed store error counter.
func (mc *MetricsCollector) RecordCacheError(cache, operation string) {
	if mc == nil {
		return
	}
	mc.cacheErrors.WithLabelValues(cache, operation).Inc()
}

// RecordStoreSize sets the entry count and byte size gauges.
func (mc *MetricsCollector) RecordStoreSize(cache string, entries int, bytes int64) {
	if mc == nil {
		return
	}
	mc.storeEntries.WithLabelValues(cache).Set(float64(entries))
	mc.storeBytes.WithLabelValues(cache).Set(float64(bytes))
}

// RecordEviction increments the capacity eviction counter.
func (mc *MetricsCollector) RecordEviction(cache string) {
	if mc == nil {
		return
	}
	mc.evictions.WithLabelValues(cache).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}

	var stateValue float64
	switch state {
	case StateClosed:
		stateValue = 0
	case StateOpen:
		stateValue = 1
	case StateHalfOpen:
		stateValue = 2
	}

	mc.circuitBreakerState.WithLabelValues(name).Set(stateValue)
}

// RecordPendingFetches sets the in-flight fetch gauge.
func (mc *MetricsCollector) RecordPendingFetches(cache string, pending int) {
	if mc == nil {
		return
	}
	mc.pendingFetches.WithLabelValues(cache).Set(float64(pending))
}

// RecordDeduplicationHit increments the joined-fetch counter.
func (mc *MetricsCollector) RecordDeduplicationHit(cache string) {
	if mc == nil {
		return
	}
	mc.deduplicationHits.WithLabelValues(cache).Inc()
}

// RecordRequest records a rate-limited request outcome and duration.
func (mc *MetricsCollector) RecordRequest(provider, endpoint, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requestsTotal.WithLabelValues(provider, endpoint, outcome).Inc()
	mc.requestDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}

// RecordRetry increments the retry counter.
func (mc *MetricsCollector) RecordRetry(provider, endpoint string) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(provider, endpoint).Inc()
}

// RecordRotation increments the credential rotation counter.
func (mc *MetricsCollector) RecordRotation(provider string) {
	if mc == nil {
		return
	}
	mc.rotationsTotal.WithLabelValues(provider).Inc()
}

// RecordBlockedKeys sets the blocked credential gauge.
func (mc *MetricsCollector) RecordBlockedKeys(provider string, blocked int) {
	if mc == nil {
		return
	}
	mc.blockedKeys.WithLabelValues(provider).Set(float64(blocked))
}

// RecordThrottleWait increments the throttle delay counter.
func (mc *MetricsCollector) RecordThrottleWait(endpoint string) {
	if mc == nil {
		return
	}
	mc.throttleWaits.WithLabelValues(endpoint).Inc()
}

// RecordRetryBudgetExceeded increments the retry budget exhaustion counter.
func (mc *MetricsCollector) RecordRetryBudgetExceeded(provider string) {
	if mc == nil {
		return
	}
	mc.retryBudgetExceeded.WithLabelValues(provider).Inc()
}

// GetRegistry returns the underlying prometheus registry when the collector
// was built on one, nil otherwise.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	if reg, ok := mc.registerer.(*prometheus.Registry); ok {
		return reg
	}
	return nil
}
