package ratelimit

import "errors"

// ErrConfig marks a configuration error: non-positive capacity or
// max-requests, negative refill rate, non-positive window size. Fatal to
// the limiter instance — callers should abort construction, not retry.
var ErrConfig = errors.New("ratelimit: invalid configuration")

// ErrInvalidWeight marks a non-positive tokens/weight argument to Check.
var ErrInvalidWeight = errors.New("ratelimit: tokens must be > 0")
