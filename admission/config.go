package admission

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"encore.app/pkg/ratelimit"
)

// Config bundles everything needed to construct the admission service's
// limiter at startup: which algorithm, which backend, and the parameters
// each requires. Loaded once via loadConfig and frozen for the process
// lifetime.
type Config struct {
	Algorithm ratelimit.Algorithm
	Backend   ratelimit.Backend

	TokenBucket   ratelimit.TokenBucketConfig
	SlidingWindow ratelimit.SlidingWindowConfig
	KV            ratelimit.KVBackendConfig

	Host string
	Port int
}

// loadConfig reads RL_-prefixed environment variables via viper, applying
// defaults for every setting so the service can start with no environment
// configured at all.
func loadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("algorithm", "token_bucket")
	v.SetDefault("backend", "memory")
	v.SetDefault("capacity", 10)
	v.SetDefault("refill_rate_per_sec", 1.0)
	v.SetDefault("window_size_ms", 1000)
	v.SetDefault("max_requests", 10)
	v.SetDefault("key_prefix", "rl")
	v.SetDefault("failure_mode", "fail_open")
	v.SetDefault("redis_url", "localhost:6379")
	v.SetDefault("connect_timeout_ms", 2000)
	v.SetDefault("read_timeout_ms", 2000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)

	algorithm := ratelimit.Algorithm(v.GetString("algorithm"))
	backend := ratelimit.Backend(v.GetString("backend"))
	if algorithm != ratelimit.AlgorithmTokenBucket && algorithm != ratelimit.AlgorithmSlidingWindowLog {
		return Config{}, fmt.Errorf("%w: RL_ALGORITHM must be token_bucket or sliding_window_log, got %q", ratelimit.ErrConfig, algorithm)
	}
	if backend != ratelimit.BackendMemory && backend != ratelimit.BackendShared {
		return Config{}, fmt.Errorf("%w: RL_BACKEND must be memory or shared, got %q", ratelimit.ErrConfig, backend)
	}

	tbCfg, err := ratelimit.NewTokenBucketConfig(v.GetInt64("capacity"), v.GetFloat64("refill_rate_per_sec"))
	if err != nil {
		return Config{}, err
	}

	swCfg, err := ratelimit.NewSlidingWindowConfig(
		time.Duration(v.GetInt64("window_size_ms"))*time.Millisecond,
		v.GetInt64("max_requests"),
	)
	if err != nil {
		return Config{}, err
	}

	failureMode := ratelimit.FailureMode(v.GetString("failure_mode"))
	kvCfg, err := ratelimit.NewKVBackendConfig(v.GetString("redis_url"), v.GetString("key_prefix"), failureMode)
	if err != nil {
		return Config{}, err
	}
	kvCfg.ConnectTimeout = time.Duration(v.GetInt64("connect_timeout_ms")) * time.Millisecond
	kvCfg.ReadTimeout = time.Duration(v.GetInt64("read_timeout_ms")) * time.Millisecond

	return Config{
		Algorithm:     algorithm,
		Backend:       backend,
		TokenBucket:   tbCfg,
		SlidingWindow: swCfg,
		KV:            kvCfg,
		Host:          v.GetString("host"),
		Port:          v.GetInt("port"),
	}, nil
}
