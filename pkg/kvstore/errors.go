// Package kvstore implements the KV client contract required by
// pkg/ratelimit's shared-state limiters: a connection pool with per-call
// timeouts, script loading by digest with source fallback on a cache miss,
// and errors classified into connect failure, read timeout, and unknown
// script.
package kvstore

import "errors"

// ErrConnect marks a connection failure (dial/auth/network) talking to the
// KV store. Classified as a transient backend error: surfaced to the
// caller's failure-mode policy, never propagated raw.
var ErrConnect = errors.New("kvstore: connect failure")

// ErrTimeout marks a read or connect timeout bounded by the configured
// socket_connect_timeout / socket_timeout. Classified as a transient
// backend error.
var ErrTimeout = errors.New("kvstore: timeout")

// ErrUnknownScript marks a NOSCRIPT reply: the digest-based invocation
// missed the KV store's script cache. Recoverable — callers must re-invoke
// by source and re-cache the digest.
var ErrUnknownScript = errors.New("kvstore: unknown script")
