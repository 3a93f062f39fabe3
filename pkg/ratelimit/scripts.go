package ratelimit

import "context"

// ScriptRunner is the KV client contract the shared-state limiters need:
// load a script once, invoke it by digest, and transparently retry by
// source on an "unknown script" (NOSCRIPT) error. Concrete implementations
// (pkg/kvstore) own the connection pool, per-call timeouts, and error
// classification into connect/timeout/unknown-script.
type ScriptRunner interface {
	// Run executes script against keys/args, following the digest-first,
	// source-fallback caller protocol internally. The returned slice is
	// the script's raw multi-value reply.
	Run(ctx context.Context, script *Script, keys []string, args ...any) ([]any, error)

	// Ping probes KV-store liveness without touching any rate-limit key.
	Ping(ctx context.Context) error
}

// Script holds a Lua source. It carries no digest itself: a ScriptRunner
// implementation caches the SHA1 digest per *Script (kvstore.Redis does so
// on the first Run call) and re-caches it after any NOSCRIPT fallback:
// treating a cache miss as a
// recoverable control-flow case, not an exception to surface, keeps the
// hot path branchless.
type Script struct {
	Source string
}

// tokenBucketScript implements the shared token-bucket check atomically:
// a hash per key with fields tokens/ts, lazy-initialized to (capacity,
// now_ms) on first use, refilled by elapsed time, admitted or denied
// against the requested weight, written back with an expiry that lets
// idle keys vanish while active ones never expire mid-use.
//
// KEYS[1] = bucket hash key
// ARGV[1] = now_ms, ARGV[2] = capacity, ARGV[3] = refill_per_ms, ARGV[4] = requested
// returns {allowed(0/1), tokens_left, retry_after_ms}
var tokenBucketScript = &Script{Source: `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_per_ms = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(data[1])
local ts = tonumber(data[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now_ms
end

local delta_ms = now_ms - ts
if delta_ms < 0 then delta_ms = 0 end
tokens = math.min(capacity, tokens + delta_ms * refill_per_ms)

local allowed = 0
local retry_after_ms = 0

if tokens >= requested then
  tokens = tokens - requested
  allowed = 1
else
  if refill_per_ms > 0 then
    retry_after_ms = math.ceil((requested - tokens) / refill_per_ms)
  end
end

redis.call('HMSET', key, 'tokens', tokens, 'ts', now_ms)

local eps = 0.000001
local ttl_ms = math.ceil(capacity / math.max(refill_per_ms, eps)) * 2
redis.call('PEXPIRE', key, math.floor(ttl_ms))

return {allowed, tostring(tokens), retry_after_ms}
`}

// slidingWindowScript implements the shared sliding-window-log check
// atomically: a sorted set per key scored by event timestamp. Stale
// members are trimmed, cardinality is checked against max_requests, and on
// admission a new member is added whose value is made unique via a
// script-local Redis counter (a per-key INCR, not a cross-process
// unique-ID scheme) so two events in the same millisecond never collide.
//
// KEYS[1] = zset key, KEYS[2] = companion tie-break counter key
// ARGV[1] = now_ms, ARGV[2] = window_size_ms, ARGV[3] = max_requests
// returns {allowed(0/1), remaining, retry_after_ms}
var slidingWindowScript = &Script{Source: `
local key = KEYS[1]
local counter_key = KEYS[2]
local now_ms = tonumber(ARGV[1])
local window_size_ms = tonumber(ARGV[2])
local max_requests = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now_ms - window_size_ms)

local n = redis.call('ZCARD', key)
local allowed = 0
local remaining = 0
local retry_after_ms = 0

if n < max_requests then
  local seq = redis.call('INCR', counter_key)
  redis.call('PEXPIRE', counter_key, window_size_ms * 2)
  local member = tostring(now_ms) .. '-' .. tostring(seq)
  redis.call('ZADD', key, now_ms, member)
  allowed = 1
  remaining = max_requests - (n + 1)
else
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  if oldest[2] ~= nil then
    local oldest_ts = tonumber(oldest[2])
    retry_after_ms = window_size_ms - (now_ms - oldest_ts)
    if retry_after_ms < 0 then retry_after_ms = 0 end
  end
end

redis.call('PEXPIRE', key, window_size_ms * 2)

return {allowed, remaining, retry_after_ms}
`}
