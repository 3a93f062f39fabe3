package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore.app/pkg/ratelimit"
)

func TestSweepStale_LeavesFreshEntries(t *testing.T) {
	cfg, err := ratelimit.NewTokenBucketConfig(3, 1)
	require.NoError(t, err)
	b, err := ratelimit.NewMemoryTokenBucket(cfg)
	require.NoError(t, err)

	_, err = b.Check("k", 1)
	require.NoError(t, err)

	s := &Service{memTB: b}
	s.sweepStale()

	// A routine sweep uses a 10-minute staleness window; an entry touched
	// moments ago must survive it, so a forced eviction afterwards still
	// finds it.
	assert.Equal(t, 1, b.CleanupStale(-time.Hour), "sweepStale must not have evicted a freshly touched entry")
}

func TestSweepStale_NoopWithoutMemoryLimiters(t *testing.T) {
	s := &Service{}
	assert.NotPanics(t, func() { s.sweepStale() })
}
