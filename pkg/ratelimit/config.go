package ratelimit

import (
	"fmt"
	"time"
)

// TokenBucketConfig is a frozen parameter bundle for a token-bucket
// limiter. Configs are immutable once constructed; validate at
// construction time rather than on every Check call.
type TokenBucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// NewTokenBucketConfig validates and freezes a TokenBucketConfig.
func NewTokenBucketConfig(capacity int64, refillRate float64) (TokenBucketConfig, error) {
	if capacity <= 0 {
		return TokenBucketConfig{}, fmt.Errorf("%w: capacity must be > 0, got %d", ErrConfig, capacity)
	}
	if refillRate < 0 {
		return TokenBucketConfig{}, fmt.Errorf("%w: refill_rate must be >= 0, got %f", ErrConfig, refillRate)
	}
	return TokenBucketConfig{Capacity: capacity, RefillRate: refillRate}, nil
}

// SlidingWindowConfig is a frozen parameter bundle for a sliding-window-log
// limiter.
type SlidingWindowConfig struct {
	WindowSize  time.Duration
	MaxRequests int64
}

// NewSlidingWindowConfig validates and freezes a SlidingWindowConfig.
func NewSlidingWindowConfig(windowSize time.Duration, maxRequests int64) (SlidingWindowConfig, error) {
	if windowSize <= 0 {
		return SlidingWindowConfig{}, fmt.Errorf("%w: window_size_ms must be > 0, got %s", ErrConfig, windowSize)
	}
	if maxRequests <= 0 {
		return SlidingWindowConfig{}, fmt.Errorf("%w: max_requests must be > 0, got %d", ErrConfig, maxRequests)
	}
	return SlidingWindowConfig{WindowSize: windowSize, MaxRequests: maxRequests}, nil
}

func (c SlidingWindowConfig) windowMs() int64 {
	return c.WindowSize.Milliseconds()
}

// KVBackendConfig bundles connection parameters for the shared-state
// backend: addressing, timeouts, key namespacing, and the failure policy
// applied when the KV store is unreachable.
type KVBackendConfig struct {
	Addr           string
	Password       string
	DB             int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	KeyPrefix      string
	FailureMode    FailureMode
}

// NewKVBackendConfig validates and freezes a KVBackendConfig.
func NewKVBackendConfig(addr string, keyPrefix string, failureMode FailureMode) (KVBackendConfig, error) {
	if addr == "" {
		return KVBackendConfig{}, fmt.Errorf("%w: addr must not be empty", ErrConfig)
	}
	if keyPrefix == "" {
		keyPrefix = "rl"
	}
	if failureMode != ModeFailOpen && failureMode != ModeFailClosed {
		return KVBackendConfig{}, fmt.Errorf("%w: failure_mode must be fail_open or fail_closed, got %q", ErrConfig, failureMode)
	}
	return KVBackendConfig{
		Addr:           addr,
		KeyPrefix:      keyPrefix,
		FailureMode:    failureMode,
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}, nil
}

// StorageKey returns the effective KV-store key for a user-supplied key,
// via prefix concatenation.
func (c KVBackendConfig) StorageKey(key string) string {
	return c.KeyPrefix + ":" + key
}
