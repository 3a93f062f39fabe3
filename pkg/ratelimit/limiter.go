package ratelimit

import "context"

// Limiter is the contract the admission adapter drives: take a client key
// (and, for token-bucket limiters, a request weight) and return a Result.
// In-process limiters never return a non-nil error for a well-formed call
// (transient failures do not exist for them); shared-state limiters return
// a Result even on KV-store failure, shaped by the configured failure-mode
// policy — an error return is reserved for programmer errors like a
// non-positive weight.
type Limiter interface {
	Check(ctx context.Context, key string, weight float64) (Result, error)
}

// tokenBucketLimiter and slidingWindowLimiter below let the
// context-free in-process limiters satisfy Limiter without threading an
// unused context through their hot path.

type tokenBucketLimiter struct{ b *MemoryTokenBucket }

func (l tokenBucketLimiter) Check(_ context.Context, key string, weight float64) (Result, error) {
	return l.b.Check(key, weight)
}

// AsLimiter adapts a MemoryTokenBucket to the Limiter interface.
func (b *MemoryTokenBucket) AsLimiter() Limiter { return tokenBucketLimiter{b} }

type slidingWindowLimiter struct{ w *MemorySlidingWindow }

func (l slidingWindowLimiter) Check(_ context.Context, key string, _ float64) (Result, error) {
	return l.w.Check(key)
}

// AsLimiter adapts a MemorySlidingWindow to the Limiter interface.
func (w *MemorySlidingWindow) AsLimiter() Limiter { return slidingWindowLimiter{w} }
