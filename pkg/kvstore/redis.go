package kvstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"encore.app/pkg/ratelimit"
)

// Redis is the reference KV store implementation, backed by
// github.com/redis/go-redis/v9.
//
// Script digests are cached per *ratelimit.Script and re-populated on a
// NOSCRIPT miss. Concurrent misses for the same script are coalesced with
// golang.org/x/sync/singleflight so a cold start or a Redis restart
// triggers exactly one SCRIPT LOAD, not one per racing goroutine.
type Redis struct {
	client         *goredis.Client
	connectTimeout time.Duration
	readTimeout    time.Duration

	digests   sync.Map // *ratelimit.Script -> string (sha1 hex)
	loadGroup singleflight.Group
}

// NewRedis constructs a Redis-backed KV store from cfg.
func NewRedis(cfg ratelimit.KVBackendConfig) *Redis {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.ReadTimeout,
	})
	return &Redis{
		client:         client,
		connectTimeout: cfg.ConnectTimeout,
		readTimeout:    cfg.ReadTimeout,
	}
}

// NewRedisFromClient wraps an already-constructed go-redis client —
// used by tests against github.com/alicebob/miniredis/v2.
func NewRedisFromClient(client *goredis.Client, connectTimeout, readTimeout time.Duration) *Redis {
	return &Redis{client: client, connectTimeout: connectTimeout, readTimeout: readTimeout}
}

// Run satisfies ratelimit.ScriptRunner: invoke by cached digest, falling
// back to source-and-recache exactly once on NOSCRIPT.
func (r *Redis) Run(ctx context.Context, script *ratelimit.Script, keys []string, args ...any) ([]any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()

	if sha, ok := r.digests.Load(script); ok {
		reply, err := r.client.EvalSha(ctx, sha.(string), keys, args...).Result()
		if err == nil {
			return toSlice(reply), nil
		}
		if !isNoScript(err) {
			return nil, classify(err)
		}
		// NOSCRIPT: fall through and reload.
	}

	sha, err := r.loadScript(ctx, script)
	if err != nil {
		return nil, classify(err)
	}

	reply, err := r.client.EvalSha(ctx, sha, keys, args...).Result()
	if err != nil {
		return nil, classify(err)
	}
	return toSlice(reply), nil
}

// Ping probes KV-store liveness, bounded by the connect timeout.
func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) loadScript(ctx context.Context, script *ratelimit.Script) (string, error) {
	v, err, _ := r.loadGroup.Do(script.Source, func() (any, error) {
		return r.client.ScriptLoad(ctx, script.Source).Result()
	})
	if err != nil {
		return "", err
	}
	sha := v.(string)
	r.digests.Store(script, sha)
	return sha, nil
}

func isNoScript(err error) bool {
	return strings.Contains(err.Error(), "NOSCRIPT")
}

// classify maps a go-redis error into the taxonomy pkg/ratelimit's
// failure-mode policy understands.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if isNoScript(err) {
		return fmt.Errorf("%w: %v", ErrUnknownScript, err)
	}
	return fmt.Errorf("%w: %v", ErrConnect, err)
}

// toSlice normalizes a Lua multi-value reply ([]interface{}) returned by
// EvalSha into []any for pkg/ratelimit to decode positionally.
func toSlice(reply any) []any {
	if s, ok := reply.([]any); ok {
		return s
	}
	return []any{reply}
}
