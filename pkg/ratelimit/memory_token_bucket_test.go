package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTokenBucket_ConfigValidation(t *testing.T) {
	_, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 0, RefillRate: 1})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: -1})
	assert.ErrorIs(t, err, ErrConfig)
}

// A burst up to capacity succeeds; the next request is denied.
func TestMemoryTokenBucket_BurstThenDeny(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 3, RefillRate: 0})
	require.NoError(t, err)

	want := []bool{true, true, true, false}
	for i, w := range want {
		res, err := b.Check("k", 1)
		require.NoError(t, err)
		assert.Equalf(t, w, res.Allowed, "call %d", i+1)
	}
}

// Tokens become available again after enough time passes for a refill.
func TestMemoryTokenBucket_Refill(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: 10})
	require.NoError(t, err)

	res, err := b.Check("k", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Check("k", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	time.Sleep(120 * time.Millisecond)

	res, err = b.Check("k", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMemoryTokenBucket_RejectsNonPositiveWeight(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 3, RefillRate: 1})
	require.NoError(t, err)

	_, err = b.Check("k", 0)
	assert.ErrorIs(t, err, ErrInvalidWeight)

	_, err = b.Check("k", -1)
	assert.ErrorIs(t, err, ErrInvalidWeight)
}

func TestMemoryTokenBucket_RetryAfterZeroWhenAllowed(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 3, RefillRate: 1})
	require.NoError(t, err)

	res, err := b.Check("k", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.Zero(t, res.RetryAfterMs)
}

func TestMemoryTokenBucket_NeverRefillsNeverSucceeds(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: 0})
	require.NoError(t, err)

	_, err = b.Check("k", 1)
	require.NoError(t, err)

	res, err := b.Check("k", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.RetryAfterMs)
}

func TestMemoryTokenBucket_PerKeyIsolation(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 1, RefillRate: 0})
	require.NoError(t, err)

	res, err := b.Check("a", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Check("a", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = b.Check("b", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "independent key must not be affected")
}

// Concurrency test: 1000 concurrent admissions on a single key with
// capacity N and no refill must yield exactly N allowed results.
func TestMemoryTokenBucket_ConcurrentSingleKey(t *testing.T) {
	const n = 37
	const attempts = 1000

	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: int64(n), RefillRate: 0})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := b.Check("hot", 1)
			if err != nil {
				return
			}
			if res.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, n, allowed)
}

func TestMemoryTokenBucket_CleanupStale(t *testing.T) {
	b, err := NewMemoryTokenBucket(TokenBucketConfig{Capacity: 3, RefillRate: 1})
	require.NoError(t, err)

	_, err = b.Check("k", 1)
	require.NoError(t, err)

	evicted := b.CleanupStale(time.Hour)
	assert.Zero(t, evicted)

	evicted = b.CleanupStale(-time.Hour)
	assert.Equal(t, 1, evicted)
}
