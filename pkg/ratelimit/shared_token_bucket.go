package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// SharedTokenBucket is a shared-state token-bucket limiter: the same
// external contract as MemoryTokenBucket, but the atomic decision is
// delegated to tokenBucketScript running inside the KV store against one
// hash per key.
type SharedTokenBucket struct {
	cfg    TokenBucketConfig
	kvCfg  KVBackendConfig
	runner ScriptRunner
}

// NewSharedTokenBucket builds a shared-state token-bucket limiter backed by
// runner (typically a *kvstore.Redis).
func NewSharedTokenBucket(cfg TokenBucketConfig, kvCfg KVBackendConfig, runner ScriptRunner) (*SharedTokenBucket, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0", ErrConfig)
	}
	if cfg.RefillRate < 0 {
		return nil, fmt.Errorf("%w: refill_rate must be >= 0", ErrConfig)
	}
	return &SharedTokenBucket{cfg: cfg, kvCfg: kvCfg, runner: runner}, nil
}

// Check invokes tokenBucketScript for key. On a connectivity or timeout
// error from the KV store, the result is produced by the configured
// FailureMode instead of propagating the error.
func (b *SharedTokenBucket) Check(ctx context.Context, key string, tokens float64) (Result, error) {
	if tokens <= 0 {
		return Result{}, ErrInvalidWeight
	}

	nowMs := time.Now().UnixMilli()
	refillPerMs := b.cfg.RefillRate / 1000

	storageKey := b.kvCfg.StorageKey(key)
	reply, err := b.runner.Run(ctx, tokenBucketScript, []string{storageKey},
		nowMs, b.cfg.Capacity, refillPerMs, tokens)
	if err != nil {
		return failureResult(AlgorithmTokenBucket, b.kvCfg.FailureMode, err.Error()), nil
	}

	if len(reply) < 3 {
		return failureResult(AlgorithmTokenBucket, b.kvCfg.FailureMode, "malformed script reply"), nil
	}

	allowed := toInt64(reply[0]) == 1
	tokensLeft := toFloat64(reply[1])
	retryAfterMs := toInt64(reply[2])

	if allowed {
		return allowResult(AlgorithmTokenBucket, BackendShared, tokensLeft), nil
	}
	return denyResult(AlgorithmTokenBucket, BackendShared, tokensLeft, retryAfterMs), nil
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}
