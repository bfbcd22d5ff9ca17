package tameng

import (
	"context"
	"encoding/json"
	"time"
)

// CachedFunc wraps op with read-through caching: keyFn names the cache entry
// for an argument, and results marshal through JSON into the byte-oriented
// cache. Concurrent calls for the same key share one execution of op via
// GetOrSet. This is the explicit replacement for annotation-style method
// caching: callers hold the wrapped function instead of decorating op.
func CachedFunc[A any, T any](c *Cache, keyFn func(A) string, ttl time.Duration, op func(ctx context.Context, arg A) (T, error)) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		var zero T

		raw, err := c.GetOrSet(ctx, keyFn(arg), func(ctx context.Context) ([]byte, error) {
			result, err := op(ctx, arg)
			if err != nil {
				return nil, err
			}
			return json.Marshal(result)
		}, ttl)
		if err != nil {
			return zero, err
		}

		var result T
		if err := json.Unmarshal(raw, &result); err != nil {
			return zero, err
		}
		return result, nil
	}
}
