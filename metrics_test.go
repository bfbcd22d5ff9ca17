package tameng

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsCollectorSafe(t *testing.T) {
	var mc *MetricsCollector

	// None of these may panic on a nil receiver.
	mc.RecordCacheHit("default")
	mc.RecordCacheMiss("default")
	mc.RecordCacheError("default", "get")
	mc.RecordStoreSize("default", 1, 100)
	mc.RecordEviction("default")
	mc.RecordCircuitBreakerState("default", StateOpen)
	mc.RecordPendingFetches("default", 1)
	mc.RecordDeduplicationHit("default")
	mc.RecordRequest("acme", "acme:search", "success", time.Second)
	mc.RecordRetry("acme", "acme:search")
	mc.RecordRotation("acme")
	mc.RecordBlockedKeys("acme", 1)
	mc.RecordThrottleWait("acme:search")
	mc.RecordRetryBudgetExceeded("acme")

	if mc.GetRegistry() != nil {
		t.Error("Expected nil registry from nil collector")
	}
}

func TestMetricsCollectorWithRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCacheHit("default")
	mc.RecordCacheMiss("default")
	mc.RecordRequest("acme", "acme:search", "success", 100*time.Millisecond)
	mc.RecordRotation("acme")
	mc.RecordCircuitBreakerState("default", StateHalfOpen)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, want := range []string{
		"tameng_cache_hits_total",
		"tameng_cache_misses_total",
		"tameng_requests_total",
		"tameng_request_duration_seconds",
		"tameng_key_rotations_total",
		"tameng_circuit_breaker_state",
	} {
		if !found[want] {
			t.Errorf("Expected metric %s registered", want)
		}
	}

	if mc.GetRegistry() != registry {
		t.Error("Expected GetRegistry to return the supplied registry")
	}
}

func TestMetricsCircuitBreakerStateValues(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCircuitBreakerState("default", StateOpen)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "tameng_circuit_breaker_state" {
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 1 {
			t.Errorf("Expected open state gauge 1, got %v", got)
		}
		return
	}
	t.Error("Expected circuit breaker state metric registered")
}

func TestCacheRecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	c := NewCache(WithSweepInterval(0), WithMetricsCollector(mc))
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "k1", []byte("v1"), time.Minute)
	c.Get(ctx, "k1")
	c.Get(ctx, "missing")

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	if values["tameng_cache_hits_total"] != 1 {
		t.Errorf("Expected 1 hit recorded, got %v", values["tameng_cache_hits_total"])
	}
	if values["tameng_cache_misses_total"] != 1 {
		t.Errorf("Expected 1 miss recorded, got %v", values["tameng_cache_misses_total"])
	}
}

func TestStoreEvictionMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	// Room for two 8-byte entries; the third write evicts the oldest.
	s := NewMemoryStore(150, 0)
	defer s.Close()
	s.SetMetrics(mc, "default")

	ctx := context.Background()
	s.Set(ctx, "k1", []byte("aaaaaaaa"), 0)
	s.Set(ctx, "k2", []byte("bbbbbbbb"), 0)
	s.Set(ctx, "k3", []byte("cccccccc"), 0)

	if got := s.Evictions(); got != 1 {
		t.Fatalf("Expected 1 eviction, got %d", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather() returned error: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != "tameng_store_evictions_total" {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 1 {
			t.Errorf("Expected eviction counter 1, got %v", got)
		}
		return
	}
	t.Error("Expected eviction metric registered")
}

func TestCacheWiresStoreEvictionMetric(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	c := NewCache(WithSweepInterval(0), WithMetricsCollector(mc))
	defer c.Close()

	ms, ok := c.store.(*MemoryStore)
	if !ok {
		t.Fatalf("Expected owned MemoryStore, got %T", c.store)
	}
	if ms.metrics != mc {
		t.Error("Expected owned store wired to the cache's collector")
	}
	if ms.metricsName != "default" {
		t.Errorf("Expected metrics name default, got %q", ms.metricsName)
	}
}
