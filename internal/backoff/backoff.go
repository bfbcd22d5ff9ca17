// Package backoff provides the delay schedule used by the rate limiter's
// retry loop: exponential growth for rate-limited attempts, with optional
// equal jitter to avoid synchronized retry storms.
package backoff

import (
	"math/rand"
	"time"
)

// Next doubles the current delay, capping at max. Non-positive inputs are
// treated as max so a misconfigured schedule degrades to its ceiling rather
// than busy-looping.
func Next(current, max time.Duration) time.Duration {
	if current <= 0 || current >= max {
		return max
	}
	next := current * 2
	if next > max || next < 0 {
		next = max
	}
	return next
}

// Jitter scales d by a uniform factor in [0.5, 1.0).
func Jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.5 + 0.5*rand.Float64()))
}

// Delay returns the wait for the current delay, applying jitter when enabled.
func Delay(d time.Duration, useJitter bool) time.Duration {
	if useJitter {
		return Jitter(d)
	}
	if d < 0 {
		return 0
	}
	return d
}
