package tameng

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrNoCredentials is returned when no API keys are registered for a provider
	ErrNoCredentials = errors.New("tameng: no credentials registered for provider")

	// ErrRemoteStoreUnsupported is returned by every RemoteStore operation
	ErrRemoteStoreUnsupported = errors.New("tameng: remote store not yet supported")

	// ErrValueTooLarge is returned when a value cannot fit the store even when empty
	ErrValueTooLarge = errors.New("tameng: value exceeds store memory limit")

	// ErrNotNumeric is returned by IncrBy when the stored value is not an integer
	ErrNotNumeric = errors.New("tameng: value is not an integer")

	// ErrStoreClosed is returned by store operations after Close
	ErrStoreClosed = errors.New("tameng: store closed")

	// ErrRetryBudgetExceeded is returned when the retry budget is exhausted
	ErrRetryBudgetExceeded = errors.New("tameng: retry budget exceeded")
)

// Error type tags carried by RequestError.
const (
	ErrorTypeNoCredentials = "NoCredentials"
	ErrorTypeRateLimit     = "RateLimit"
	ErrorTypeTransient     = "Transient"
	ErrorTypeExhausted     = "Exhausted"
	ErrorTypeTimeout       = "Timeout"
	ErrorTypeRetryBudget   = "RetryBudget"
	ErrorTypeValidation    = "Validation"
)

// RateLimitError marks a response as rate limited, the equivalent of an
// HTTP 429 or 403 from a provider. Request functions return it (directly or
// wrapped) to drive key rotation and exponential backoff.
type RateLimitError struct {
	StatusCode int
	Message    string
}

// Error implements error interface.
func (e *RateLimitError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message != "" {
		return fmt.Sprintf("tameng: rate limited (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("tameng: rate limited (status %d)", e.StatusCode)
}

// NewRateLimitError builds a RateLimitError for the given status code.
func NewRateLimitError(statusCode int) *RateLimitError {
	return &RateLimitError{StatusCode: statusCode}
}

// IsRateLimited reports whether err represents a rate-limit rejection.
// A zero status code counts as rate limited so hand-built errors without an
// HTTP equivalent still rotate keys.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		return false
	}
	switch rle.StatusCode {
	case 0, http.StatusTooManyRequests, http.StatusForbidden:
		return true
	default:
		return false
	}
}

// RequestError is the typed error surfaced by RateLimiter.Execute and by
// configuration validation.
type RequestError struct {
	Type       string
	Message    string
	Provider   string
	Endpoint   string
	Attempt    int
	MaxRetries int
	Timestamp  time.Time
	Duration   time.Duration
	Cause      error
}

// Error implements error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (provider %s)", msg, e.Provider)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error types for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *RequestError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.Provider != "" {
		info += fmt.Sprintf("Provider: %s\n", e.Provider)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.Attempt > 0 {
		info += fmt.Sprintf("Attempt: %d/%d\n", e.Attempt, e.MaxRetries)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// IsTerminal reports whether err is a terminal outcome the retry loop will
// not attempt again: missing credentials, exhausted retries, timed-out
// budget, an exceeded retry budget, or invalid configuration.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrRetryBudgetExceeded) {
		return true
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Type {
		case ErrorTypeNoCredentials, ErrorTypeExhausted, ErrorTypeTimeout, ErrorTypeRetryBudget, ErrorTypeValidation:
			return true
		}
	}
	return false
}
