package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// tokenBucketState holds one key's bucket: tokens currently available, in
// [0, capacity], and the timestamp they were last recomputed at.
type tokenBucketState struct {
	tokens float64
	ts     time.Time
}

// MemoryTokenBucket is an in-process token-bucket limiter. State is a local
// map keyed by the caller's key, guarded per-key by a KeyedLockRegistry
// rather than one global lock. A single RWMutex-guarded map is acceptable
// below roughly 100K ops/sec per key-space; sharding the map is the natural
// next step beyond that.
type MemoryTokenBucket struct {
	cfg   TokenBucketConfig
	locks *KeyedLockRegistry

	mu    sync.RWMutex
	state map[string]*tokenBucketState
}

// NewMemoryTokenBucket builds an in-process token-bucket limiter. Returns
// ErrConfig if cfg was not built through NewTokenBucketConfig successfully
// (capacity <= 0 or refill_rate < 0).
func NewMemoryTokenBucket(cfg TokenBucketConfig) (*MemoryTokenBucket, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0", ErrConfig)
	}
	if cfg.RefillRate < 0 {
		return nil, fmt.Errorf("%w: refill_rate must be >= 0", ErrConfig)
	}
	return &MemoryTokenBucket{
		cfg:   cfg,
		locks: NewKeyedLockRegistry(),
		state: make(map[string]*tokenBucketState),
	}, nil
}

// Check admits or denies a request for the given key under that key's
// mutex: load-or-initialize the bucket, lazily refill it by elapsed time,
// then attempt to withdraw tokens.
func (b *MemoryTokenBucket) Check(key string, tokens float64) (Result, error) {
	if tokens <= 0 {
		return Result{}, ErrInvalidWeight
	}

	lock := b.locks.LockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()

	b.mu.RLock()
	st, ok := b.state[key]
	b.mu.RUnlock()

	if !ok {
		st = &tokenBucketState{tokens: float64(b.cfg.Capacity), ts: now}
	} else {
		delta := now.Sub(st.ts)
		if delta < 0 {
			delta = 0
		}
		refilled := st.tokens + delta.Seconds()*b.cfg.RefillRate
		st.tokens = math.Min(float64(b.cfg.Capacity), refilled)
		st.ts = now
	}

	var res Result
	if st.tokens >= tokens {
		st.tokens -= tokens
		res = allowResult(AlgorithmTokenBucket, BackendMemory, st.tokens)
	} else {
		var retryAfterMs int64
		if b.cfg.RefillRate > 0 {
			shortage := tokens - st.tokens
			retryAfterMs = int64(math.Ceil(shortage / b.cfg.RefillRate * 1000))
		}
		res = denyResult(AlgorithmTokenBucket, BackendMemory, st.tokens, retryAfterMs)
	}

	b.mu.Lock()
	b.state[key] = st
	b.mu.Unlock()

	return res, nil
}

// CleanupStale removes state for keys whose last update is older than
// olderThan, releasing their keyed locks too. Intended to be invoked
// periodically (see admission/sweep.go) to bound the otherwise-unbounded
// growth of the keyed-lock registry.
func (b *MemoryTokenBucket) CleanupStale(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	b.mu.Lock()
	var stale []string
	for k, st := range b.state {
		if st.ts.Before(cutoff) {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		delete(b.state, k)
	}
	b.mu.Unlock()

	for _, k := range stale {
		b.locks.Delete(k)
	}
	return len(stale)
}
