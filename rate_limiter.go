package tameng

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ambiyansyah-risyal/tameng/internal/backoff"
)

// DefaultKeyCooldown is how long a rate-limited credential stays blocked
// before its automatic unblock.
const DefaultKeyCooldown = 5 * time.Minute

// RequestFunc performs the guarded call using the selected credential.
type RequestFunc func(ctx context.Context, credential string) ([]byte, error)

// RequestOptions configures a single Execute call. Provider and Endpoint are
// required; zero values elsewhere fall back to the defaults documented on
// DefaultRequestOptions.
type RequestOptions struct {
	Provider          string
	Endpoint          string
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	Timeout           time.Duration
	UseJitter         bool
	RotateOnRateLimit bool
	FailFast          bool
}

// DefaultRequestOptions returns options for provider and endpoint with the
// default policy: 3 attempts, 1s initial delay, 30s delay cap, 2m wall-clock
// budget, jitter and key rotation on, fail-fast off.
func DefaultRequestOptions(provider, endpoint string) RequestOptions {
	return RequestOptions{
		Provider:          provider,
		Endpoint:          endpoint,
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
		Timeout:           2 * time.Minute,
		UseJitter:         true,
		RotateOnRateLimit: true,
	}
}

// RateLimiter coordinates per-provider credential pools, per-endpoint
// throttles, and the retry loop for outbound calls. It is safe for
// concurrent use and is intended to be shared process-wide, constructed
// explicitly rather than held as a package global.
type RateLimiter struct {
	mu        sync.RWMutex
	pools     map[string]*keyPool
	throttles map[string]*endpointThrottle

	keyCooldown time.Duration
	retryBudget *RetryBudget

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger
}

// NewRateLimiter constructs a RateLimiter using the provided options.
func NewRateLimiter(options ...LimiterOption) *RateLimiter {
	rl := &RateLimiter{
		pools:       make(map[string]*keyPool),
		throttles:   make(map[string]*endpointThrottle),
		keyCooldown: DefaultKeyCooldown,
		debug:       DefaultDebugConfig(),
	}

	for _, option := range options {
		option(rl)
	}

	return rl
}

// RegisterKeys adds credentials to the provider's pool. Credentials already
// registered are ignored; records live for the process lifetime.
func (rl *RateLimiter) RegisterKeys(provider string, credentials ...string) {
	rl.mu.Lock()
	pool, ok := rl.pools[provider]
	if !ok {
		pool = newKeyPool(provider)
		rl.pools[provider] = pool
	}
	rl.mu.Unlock()

	pool.add(credentials...)
}

// ConfigureEndpoint installs (or replaces) a throttle admitting
// requestsPerInterval calls per interval. Non-positive arguments are
// ignored.
func (rl *RateLimiter) ConfigureEndpoint(endpoint string, requestsPerInterval int, interval time.Duration) {
	if requestsPerInterval <= 0 || interval <= 0 {
		return
	}

	rl.mu.Lock()
	rl.throttles[endpoint] = newEndpointThrottle(requestsPerInterval, interval)
	rl.mu.Unlock()
}

// ResetKeys lifts cooldowns and zeroes usage tracking for the provider.
func (rl *RateLimiter) ResetKeys(provider string) {
	if pool := rl.pool(provider); pool != nil {
		pool.reset()
		rl.metrics.RecordBlockedKeys(provider, 0)
	}
}

// KeyStats returns a snapshot of the provider's credential records.
func (rl *RateLimiter) KeyStats(provider string) []KeyRecord {
	pool := rl.pool(provider)
	if pool == nil {
		return nil
	}
	return pool.snapshot()
}

// Close cancels all pending credential unblock timers.
func (rl *RateLimiter) Close() error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	for _, pool := range rl.pools {
		pool.stop()
	}
	return nil
}

// Execute runs fn under the limiter's full policy: endpoint throttling,
// LRU credential selection, rotation with cooldown on rate-limit failures,
// exponential backoff with optional jitter on the rate-limit path, fixed
// InitialDelay retries on transient failures, all bounded by MaxRetries
// total attempts and the Timeout wall-clock budget.
//
// Rate-limit failures (IsRateLimited) and transient failures deliberately
// back off differently: rotation treats "this credential is throttled" as a
// resource-selection problem and moves on immediately, while the endpoint-
// wide exponential delay only applies once no fresh credential remains.
// Transient failures wait the fixed InitialDelay, not an exponential one.
func (rl *RateLimiter) Execute(ctx context.Context, opts RequestOptions, fn RequestFunc) ([]byte, error) {
	opts = rl.normalize(opts)
	started := time.Now()

	if opts.Provider == "" || opts.Endpoint == "" {
		return nil, rl.newRequestError(ErrorTypeValidation, "provider and endpoint are required", nil, opts, 0, started)
	}

	pool := rl.pool(opts.Provider)
	if pool == nil || pool.size() == 0 {
		return nil, rl.newRequestError(ErrorTypeNoCredentials, "no API keys registered", ErrNoCredentials, opts, 0, started)
	}

	requestID := rl.debug.RequestID()
	deadline := started.Add(opts.Timeout)
	delay := opts.InitialDelay
	attempts := 0
	var lastErr error

	for attempts < opts.MaxRetries {
		if !time.Now().Before(deadline) {
			rl.metrics.RecordRequest(opts.Provider, opts.Endpoint, "timeout", time.Since(started))
			return nil, rl.newRequestError(ErrorTypeTimeout,
				fmt.Sprintf("timed out after %v (%d attempts)", opts.Timeout, attempts),
				lastErr, opts, attempts, started)
		}

		if throttle := rl.throttle(opts.Endpoint); throttle != nil {
			if wait := throttle.reserve(time.Now()); wait > 0 {
				rl.metrics.RecordThrottleWait(opts.Endpoint)
				if rl.debug != nil && rl.debug.Enabled && rl.debug.LogThrottle && rl.logger != nil {
					rl.logger.Debug("Throttled", "requestID", requestID, "endpoint", opts.Endpoint, "wait", wait)
				}
				if err := rl.sleep(ctx, wait, deadline); err != nil {
					return nil, err
				}
				// The wait may have been clipped to the wall-clock budget;
				// never start an attempt past it.
				if !time.Now().Before(deadline) {
					continue
				}
			}
		}

		credential, ok := pool.acquire()
		if !ok {
			// Every credential is in cooldown: schedule a pool-wide reset
			// after the current delay, wait it out, and retry without
			// consuming an attempt.
			wait := backoff.Delay(delay, opts.UseJitter)
			if rl.debug != nil && rl.debug.Enabled && rl.debug.LogRotation && rl.logger != nil {
				rl.logger.Warn("All credentials blocked", "requestID", requestID, "provider", opts.Provider, "wait", wait)
			}
			timer := time.AfterFunc(wait, pool.unblockAll)
			if err := rl.sleep(ctx, wait, deadline); err != nil {
				timer.Stop()
				return nil, err
			}
			continue
		}

		attempts++
		if attempts > 1 {
			rl.metrics.RecordRetry(opts.Provider, opts.Endpoint)
		}

		result, err := fn(ctx, credential)
		if err == nil {
			rl.metrics.RecordRequest(opts.Provider, opts.Endpoint, "success", time.Since(started))
			return result, nil
		}
		lastErr = err

		if IsRateLimited(err) {
			cur := delay
			delay = backoff.Next(delay, opts.MaxDelay)

			if opts.RotateOnRateLimit {
				pool.block(credential, rl.keyCooldown)
				rl.metrics.RecordRotation(opts.Provider)
				rl.metrics.RecordBlockedKeys(opts.Provider, pool.blockedCount())
				if rl.debug != nil && rl.debug.Enabled && rl.debug.LogRotation && rl.logger != nil {
					rl.logger.Info("Credential rate limited, rotating", "requestID", requestID, "provider", opts.Provider, "cooldown", rl.keyCooldown)
				}

				if attempts < opts.MaxRetries && pool.available() > 0 {
					// Another credential is fresh; retry immediately.
					continue
				}
			}

			if attempts >= opts.MaxRetries {
				break
			}
			if !rl.allowRetry(opts) {
				return nil, rl.newRequestError(ErrorTypeRetryBudget, "retry budget exceeded", ErrRetryBudgetExceeded, opts, attempts, started)
			}
			if err := rl.sleep(ctx, backoff.Delay(cur, opts.UseJitter), deadline); err != nil {
				return nil, err
			}
			continue
		}

		if opts.FailFast {
			rl.metrics.RecordRequest(opts.Provider, opts.Endpoint, "error", time.Since(started))
			return nil, err
		}
		if attempts >= opts.MaxRetries {
			break
		}
		if !rl.allowRetry(opts) {
			return nil, rl.newRequestError(ErrorTypeRetryBudget, "retry budget exceeded", ErrRetryBudgetExceeded, opts, attempts, started)
		}

		if rl.debug != nil && rl.debug.Enabled && rl.debug.LogRetries && rl.logger != nil {
			rl.logger.Info("Transient failure, retrying", "requestID", requestID, "provider", opts.Provider, "attempt", attempts, "delay", opts.InitialDelay, "error", err.Error())
		}
		// Transient failures wait the fixed initial delay, never the
		// exponential schedule.
		if err := rl.sleep(ctx, opts.InitialDelay, deadline); err != nil {
			return nil, err
		}
	}

	rl.metrics.RecordRequest(opts.Provider, opts.Endpoint, "exhausted", time.Since(started))
	return nil, rl.newRequestError(ErrorTypeExhausted,
		fmt.Sprintf("retries exhausted after %d attempts", attempts),
		lastErr, opts, attempts, started)
}

// ExecuteWithResult runs Execute and unmarshals the JSON response into T.
func ExecuteWithResult[T any](ctx context.Context, rl *RateLimiter, opts RequestOptions, fn RequestFunc) (T, error) {
	var result T

	raw, err := rl.Execute(ctx, opts, fn)
	if err != nil {
		return result, err
	}
	if len(raw) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("tameng: decode response: %w", err)
	}
	return result, nil
}

func (rl *RateLimiter) normalize(opts RequestOptions) RequestOptions {
	defaults := DefaultRequestOptions(opts.Provider, opts.Endpoint)
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaults.MaxRetries
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = defaults.InitialDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = defaults.MaxDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	return opts
}

func (rl *RateLimiter) pool(provider string) *keyPool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.pools[provider]
}

func (rl *RateLimiter) throttle(endpoint string) *endpointThrottle {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.throttles[endpoint]
}

func (rl *RateLimiter) allowRetry(opts RequestOptions) bool {
	if rl.retryBudget == nil {
		return true
	}
	if rl.retryBudget.Allow() {
		return true
	}
	rl.metrics.RecordRetryBudgetExceeded(opts.Provider)
	return false
}

// sleep waits for d, clipped to the remaining wall-clock budget. Context
// cancellation surfaces as the caller's error.
func (rl *RateLimiter) sleep(ctx context.Context, d time.Duration, deadline time.Time) error {
	if remaining := time.Until(deadline); d > remaining {
		d = remaining
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (rl *RateLimiter) newRequestError(errType, message string, cause error, opts RequestOptions, attempt int, started time.Time) *RequestError {
	return &RequestError{
		Type:       errType,
		Message:    message,
		Provider:   opts.Provider,
		Endpoint:   opts.Endpoint,
		Attempt:    attempt,
		MaxRetries: opts.MaxRetries,
		Timestamp:  time.Now(),
		Duration:   time.Since(started),
		Cause:      cause,
	}
}
