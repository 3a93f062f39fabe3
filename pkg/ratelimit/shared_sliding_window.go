package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// SharedSlidingWindow is a shared-state sliding-window-log limiter: the
// atomic decision is delegated to slidingWindowScript running against one
// sorted set per key, scored by event timestamp.
type SharedSlidingWindow struct {
	cfg    SlidingWindowConfig
	kvCfg  KVBackendConfig
	runner ScriptRunner
}

// NewSharedSlidingWindow builds a shared-state sliding-window limiter
// backed by runner.
func NewSharedSlidingWindow(cfg SlidingWindowConfig, kvCfg KVBackendConfig, runner ScriptRunner) (*SharedSlidingWindow, error) {
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: window_size_ms must be > 0", ErrConfig)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: max_requests must be > 0", ErrConfig)
	}
	return &SharedSlidingWindow{cfg: cfg, kvCfg: kvCfg, runner: runner}, nil
}

// Check invokes slidingWindowScript for key. On a connectivity or timeout
// error from the KV store, the result is produced by the configured
// FailureMode instead of propagating the error.
func (w *SharedSlidingWindow) Check(ctx context.Context, key string) (Result, error) {
	nowMs := time.Now().UnixMilli()

	storageKey := w.kvCfg.StorageKey(key)
	counterKey := storageKey + ":seq"

	reply, err := w.runner.Run(ctx, slidingWindowScript, []string{storageKey, counterKey},
		nowMs, w.cfg.windowMs(), w.cfg.MaxRequests)
	if err != nil {
		return failureResult(AlgorithmSlidingWindowLog, w.kvCfg.FailureMode, err.Error()), nil
	}

	if len(reply) < 3 {
		return failureResult(AlgorithmSlidingWindowLog, w.kvCfg.FailureMode, "malformed script reply"), nil
	}

	allowed := toInt64(reply[0]) == 1
	remaining := toFloat64(reply[1])
	retryAfterMs := toInt64(reply[2])

	if allowed {
		return allowResult(AlgorithmSlidingWindowLog, BackendShared, remaining), nil
	}
	return denyResult(AlgorithmSlidingWindowLog, BackendShared, remaining, retryAfterMs), nil
}

// AsLimiter adapts a SharedSlidingWindow to the Limiter interface, ignoring
// the weight parameter (sliding-window admission is not weighted).
func (w *SharedSlidingWindow) AsLimiter() Limiter { return sharedSlidingWindowLimiter{w} }

type sharedSlidingWindowLimiter struct{ w *SharedSlidingWindow }

func (l sharedSlidingWindowLimiter) Check(ctx context.Context, key string, _ float64) (Result, error) {
	return l.w.Check(ctx, key)
}

// AsLimiter adapts a SharedTokenBucket to the Limiter interface.
func (b *SharedTokenBucket) AsLimiter() Limiter { return sharedTokenBucketLimiter{b} }

type sharedTokenBucketLimiter struct{ b *SharedTokenBucket }

func (l sharedTokenBucketLimiter) Check(ctx context.Context, key string, weight float64) (Result, error) {
	return l.b.Check(ctx, key, weight)
}
