package admission

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"encore.app/pkg/ratelimit"
)

func newTestService(t *testing.T, capacity int64, refillRate float64) *Service {
	t.Helper()
	cfg, err := ratelimit.NewTokenBucketConfig(capacity, refillRate)
	require.NoError(t, err)
	b, err := ratelimit.NewMemoryTokenBucket(cfg)
	require.NoError(t, err)
	return &Service{memTB: b, limiter: b.AsLimiter()}
}

func doLimited(s *Service, remoteIP string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/limited", nil)
	r.Header.Set("X-Real-IP", remoteIP)
	w := httptest.NewRecorder()
	s.handleLimited(w, r)
	return w
}

func TestHandleLimited_Allow(t *testing.T) {
	s := newTestService(t, 3, 0)

	w := doLimited(s, "1.1.1.1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Tokens-Left"))
	assert.JSONEq(t, `{"ok":true,"limited":false,"client":"1.1.1.1"}`, w.Body.String())
}

func TestHandleLimited_Deny(t *testing.T) {
	s := newTestService(t, 1, 0)

	doLimited(s, "1.1.1.1")
	w := doLimited(s, "1.1.1.1")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "too many requests")
}

// Retry-After header uses ceiling-second rounding with a floor of 1.
func TestHandleLimited_RetryAfterHeader(t *testing.T) {
	cfg, err := ratelimit.NewTokenBucketConfig(1, 1)
	require.NoError(t, err)
	b, err := ratelimit.NewMemoryTokenBucket(cfg)
	require.NoError(t, err)
	s := &Service{memTB: b, limiter: b.AsLimiter()}

	// Drain the single token through the HTTP path. A request of a chosen
	// weight isn't expressible via the GET endpoint (weight is always 1), so
	// assert the general Retry-After contract against a synthetic result
	// instead of trying to force an exact ms value through the HTTP path.
	doLimited(s, "1.1.1.1")
	res := ratelimit.Result{Allowed: false, Remaining: 0, RetryAfterMs: 1200}
	w := httptest.NewRecorder()
	renderDenied(w, res)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestHandleLimited_PerKeyIsolation(t *testing.T) {
	s := newTestService(t, 1, 0)

	w1 := doLimited(s, "1.1.1.1")
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := doLimited(s, "2.2.2.2")
	assert.Equal(t, http.StatusOK, w2.Code, "independent client key must not be affected")
}
