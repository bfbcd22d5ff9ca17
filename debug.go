package tameng

import "github.com/google/uuid"

// DebugConfig controls which concerns emit debug logs when a Logger is
// configured. Logging is skipped entirely unless Enabled is set and a
// logger is present, keeping the hot paths quiet by default.
type DebugConfig struct {
	Enabled      bool
	LogCache     bool
	LogStore     bool
	LogCircuit   bool
	LogRotation  bool
	LogThrottle  bool
	LogRetries   bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a config with all concerns enabled but debug
// output off; flip Enabled (or use WithDebug) to turn it on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogCache:     true,
		LogStore:     true,
		LogCircuit:   true,
		LogRotation:  true,
		LogThrottle:  true,
		LogRetries:   true,
		RequestIDGen: defaultRequestID,
	}
}

// RequestID returns a fresh correlation ID for one logical operation, or
// empty when debug output is off. The ID is threaded through every log line
// the operation emits.
func (d *DebugConfig) RequestID() string {
	if d == nil || !d.Enabled || d.RequestIDGen == nil {
		return ""
	}
	return d.RequestIDGen()
}

func defaultRequestID() string {
	return uuid.NewString()
}
