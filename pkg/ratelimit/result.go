// Package ratelimit implements the rate-limiting core: two admission
// algorithms (token bucket, sliding-window log), each available in an
// in-process backend and a backend shared across processes through Redis.
//
// Design Notes:
//   - Both backends return a single immutable Result; errors that become
//     admission decisions (fail-open/fail-closed) are embedded in its
//     metadata rather than surfaced as a second return channel.
//   - In-process limiters serialize per key via a KeyedLockRegistry; shared
//     limiters rely on Redis's single-threaded script execution for the
//     same guarantee across processes.
package ratelimit

import "math"

// Algorithm identifies which admission algorithm produced a Result.
type Algorithm string

const (
	AlgorithmTokenBucket      Algorithm = "token_bucket"
	AlgorithmSlidingWindowLog Algorithm = "sliding_window_log"
)

// Backend identifies where a limiter's state lives.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendShared Backend = "shared"
)

// FailureMode identifies how a shared-state limiter behaves when its KV
// store is unreachable.
type FailureMode string

const (
	ModeFailOpen   FailureMode = "fail_open"
	ModeFailClosed FailureMode = "fail_closed"
)

// Result is the immutable outcome of one admission decision.
type Result struct {
	Allowed      bool
	Remaining    float64
	RetryAfterMs int64
	Metadata     map[string]any
}

// Infinite is the sentinel used for Remaining when a limiter fails open.
var Infinite = math.Inf(1)

func newMetadata(alg Algorithm, backend Backend) map[string]any {
	return map[string]any{
		"algorithm": alg,
		"backend":   backend,
	}
}

func allowResult(alg Algorithm, backend Backend, remaining float64) Result {
	return Result{
		Allowed:      true,
		Remaining:    remaining,
		RetryAfterMs: 0,
		Metadata:     newMetadata(alg, backend),
	}
}

func denyResult(alg Algorithm, backend Backend, remaining float64, retryAfterMs int64) Result {
	if retryAfterMs < 0 {
		retryAfterMs = 0
	}
	return Result{
		Allowed:      false,
		Remaining:    remaining,
		RetryAfterMs: retryAfterMs,
		Metadata:     newMetadata(alg, backend),
	}
}

// failureResult builds the Result a shared-state limiter returns when it
// cannot reach its KV store, per the configured FailureMode.
func failureResult(alg Algorithm, mode FailureMode, errText string) Result {
	meta := newMetadata(alg, BackendShared)
	meta["mode"] = string(mode)
	if errText != "" {
		meta["error"] = errText
	}

	if mode == ModeFailOpen {
		return Result{
			Allowed:      true,
			Remaining:    Infinite,
			RetryAfterMs: 0,
			Metadata:     meta,
		}
	}

	return Result{
		Allowed:      false,
		Remaining:    0,
		RetryAfterMs: 0,
		Metadata:     meta,
	}
}
