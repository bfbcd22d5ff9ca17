// Package tameng shields outbound API calls behind composable reliability
// primitives:
//
//   - Bounded in-process TTL cache with periodic sweep and size eviction
//   - Circuit breaker (open / half-open / closed states) guarding the store
//   - In-flight fetch de-duplication (GetOrSet runs one fetch per key)
//   - Glob-based invalidation and hit/miss/error statistics
//   - Multi-credential rate limiter with LRU key selection, automatic
//     rotation on rate-limit responses, exponential backoff + jitter, and
//     per-endpoint request throttling
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - The cache is an optimization, never a dependency: store failures are
//     absorbed and degrade to misses
//   - Safe concurrent use of shared Cache and RateLimiter instances
//   - Explicit lifecycles: no package globals, Close stops background work
//
// Typical usage:
//
//	cache := tameng.NewCache(
//	    tameng.WithDefaultTTL(time.Hour),
//	    tameng.WithMaxMemoryMB(100),
//	    tameng.WithKeyPrefix("search:"),
//	)
//	defer cache.Close()
//
//	rl := tameng.NewRateLimiter()
//	rl.RegisterKeys("acme", "key-a", "key-b")
//	rl.ConfigureEndpoint("acme:search", 2, time.Second)
//
//	data, err := cache.GetOrSet(ctx, "query:golang", func(ctx context.Context) ([]byte, error) {
//	    return rl.Execute(ctx, tameng.DefaultRequestOptions("acme", "acme:search"), doSearch)
//	}, 0)
//
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger) and enable debug flags selectively for insight without
// noise.
package tameng
