package tameng

import (
	"sync/atomic"
	"time"
)

// RetryBudget caps the number of retries allowed inside a sliding window so
// a failing provider cannot amplify load across many concurrent callers.
type RetryBudget struct {
	maxRetries  int64
	window      int64 // nanos
	count       int64
	windowStart int64 // unix nanos
}

// NewRetryBudget creates a budget of maxRetries per window.
func NewRetryBudget(maxRetries int, window time.Duration) *RetryBudget {
	return &RetryBudget{
		maxRetries:  int64(maxRetries),
		window:      int64(window),
		windowStart: time.Now().UnixNano(),
	}
}

// Allow consumes one retry from the budget, resetting the window when it has
// elapsed. Returns false when the budget for the current window is spent.
func (b *RetryBudget) Allow() bool {
	now := time.Now().UnixNano()

	start := atomic.LoadInt64(&b.windowStart)
	if now-start >= b.window {
		if atomic.CompareAndSwapInt64(&b.windowStart, start, now) {
			atomic.StoreInt64(&b.count, 0)
		}
	}

	return atomic.AddInt64(&b.count, 1) <= b.maxRetries
}

// Remaining reports the retries left in the current window.
func (b *RetryBudget) Remaining() int {
	used := atomic.LoadInt64(&b.count)
	if used >= b.maxRetries {
		return 0
	}
	return int(b.maxRetries - used)
}
