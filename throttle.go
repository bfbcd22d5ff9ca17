package tameng

import (
	"sync"
	"time"
)

// endpointThrottle enforces a requests-per-interval ceiling for one
// endpoint. The counting window resets once minInterval*requestsPerInterval
// has elapsed since the window started; a full window delays the next caller
// until minInterval past the last admitted request, which then begins a
// fresh window.
type endpointThrottle struct {
	mu                  sync.Mutex
	minInterval         time.Duration
	requestsPerInterval int
	intervalStart       time.Time
	requestsInInterval  int
	lastRequest         time.Time
}

func newEndpointThrottle(requestsPerInterval int, interval time.Duration) *endpointThrottle {
	return &endpointThrottle{
		minInterval:         interval / time.Duration(requestsPerInterval),
		requestsPerInterval: requestsPerInterval,
	}
}

// reserve admits the caller's request, returning how long it must wait
// before issuing it. The reservation is recorded immediately, so concurrent
// callers serialize on the window state.
func (t *endpointThrottle) reserve(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	windowLen := t.minInterval * time.Duration(t.requestsPerInterval)
	if t.intervalStart.IsZero() || now.Sub(t.intervalStart) >= windowLen {
		t.intervalStart = now
		t.requestsInInterval = 1
		t.lastRequest = now
		return 0
	}

	if t.requestsInInterval < t.requestsPerInterval {
		t.requestsInInterval++
		t.lastRequest = now
		return 0
	}

	// Window full: space by minInterval from the last admitted request and
	// start a fresh window at the admission time.
	admitAt := t.lastRequest.Add(t.minInterval)
	wait := admitAt.Sub(now)
	if wait < 0 {
		wait = 0
		admitAt = now
	}
	t.intervalStart = admitAt
	t.requestsInInterval = 1
	t.lastRequest = admitAt
	return wait
}
