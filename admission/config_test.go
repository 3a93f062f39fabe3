package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore.app/pkg/ratelimit"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ratelimit.AlgorithmTokenBucket, cfg.Algorithm)
	assert.Equal(t, ratelimit.BackendMemory, cfg.Backend)
	assert.Equal(t, int64(10), cfg.TokenBucket.Capacity)
	assert.Equal(t, "rl", cfg.KV.KeyPrefix)
	assert.Equal(t, ratelimit.ModeFailOpen, cfg.KV.FailureMode)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("RL_ALGORITHM", "sliding_window_log")
	t.Setenv("RL_BACKEND", "shared")
	t.Setenv("RL_WINDOW_SIZE_MS", "500")
	t.Setenv("RL_MAX_REQUESTS", "7")
	t.Setenv("RL_FAILURE_MODE", "fail_closed")
	t.Setenv("RL_REDIS_URL", "redis.internal:6379")

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ratelimit.AlgorithmSlidingWindowLog, cfg.Algorithm)
	assert.Equal(t, ratelimit.BackendShared, cfg.Backend)
	assert.Equal(t, int64(7), cfg.SlidingWindow.MaxRequests)
	assert.Equal(t, ratelimit.ModeFailClosed, cfg.KV.FailureMode)
	assert.Equal(t, "redis.internal:6379", cfg.KV.Addr)
}

func TestLoadConfig_RejectsInvalidAlgorithm(t *testing.T) {
	t.Setenv("RL_ALGORITHM", "bogus")
	_, err := loadConfig()
	assert.ErrorIs(t, err, ratelimit.ErrConfig)
}

func TestLoadConfig_RejectsInvalidBackend(t *testing.T) {
	t.Setenv("RL_BACKEND", "bogus")
	_, err := loadConfig()
	assert.ErrorIs(t, err, ratelimit.ErrConfig)
}
