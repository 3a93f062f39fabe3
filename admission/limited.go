package admission

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"encore.app/pkg/ratelimit"
)

type limitedResponse struct {
	OK      bool   `json:"ok"`
	Limited bool   `json:"limited"`
	Client  string `json:"client"`
	Mode    string `json:"mode,omitempty"`
}

type deniedResponse struct {
	Detail       string `json:"detail"`
	RetryAfterMs int64  `json:"retry_after_ms"`
	Mode         string `json:"mode,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Limited is the rate-limited reference endpoint: derive the client key,
// check the configured limiter, and render the result per the
// response-mapping and failure-branch rules.
//
//encore:api public raw method=GET path=/limited
func Limited(w http.ResponseWriter, r *http.Request) {
	if svc == nil {
		http.Error(w, "service not initialized", http.StatusInternalServerError)
		return
	}
	svc.handleLimited(w, r)
}

func (s *Service) handleLimited(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := clientKey(r)

	res, err := s.limiter.Check(r.Context(), key, 1)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	logDecision(key, res, time.Since(start))
	s.recordIfNotable(r, key, res)

	mode, _ := res.Metadata["mode"].(string)

	if res.Allowed {
		if !math.IsInf(res.Remaining, 1) {
			w.Header().Set("X-RateLimit-Tokens-Left", strconv.FormatFloat(res.Remaining, 'f', 3, 64))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(limitedResponse{OK: true, Limited: false, Client: key, Mode: mode})
		return
	}

	renderDenied(w, res)
}

// renderDenied writes the 429 branch of the response mapping: a JSON body
// with the denial detail, and — whenever retry_after_ms > 0 — a
// Retry-After header in whole seconds, rounded up, with a floor of 1.
func renderDenied(w http.ResponseWriter, res ratelimit.Result) {
	if res.RetryAfterMs > 0 {
		seconds := (res.RetryAfterMs + 999) / 1000
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
	}

	mode, _ := res.Metadata["mode"].(string)
	errText, _ := res.Metadata["error"].(string)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(deniedResponse{
		Detail:       "too many requests",
		RetryAfterMs: res.RetryAfterMs,
		Mode:         mode,
		Error:        errText,
	})
}

// recordIfNotable persists an audit row and publishes
// RateLimitExhaustedEvent for every denial and every failure-mode fallback
// from the shared backend — routine in-process decisions carry no
// cross-instance operational signal and are skipped.
func (s *Service) recordIfNotable(r *http.Request, key string, res ratelimit.Result) {
	backend, _ := res.Metadata["backend"].(ratelimit.Backend)
	if backend != ratelimit.BackendShared {
		return
	}

	mode, hasMode := res.Metadata["mode"].(string)
	if res.Allowed && !hasMode {
		return
	}

	algorithm, _ := res.Metadata["algorithm"].(ratelimit.Algorithm)

	s.mu.Lock()
	al := s.audit
	s.mu.Unlock()
	if al != nil {
		_ = al.RecordDenial(r.Context(), key, res)
	}

	event := &RateLimitExhaustedEvent{
		Key:          key,
		Algorithm:    string(algorithm),
		Backend:      string(backend),
		Mode:         mode,
		RetryAfterMs: res.RetryAfterMs,
		At:           time.Now(),
	}
	_, _ = RateLimitExhaustedTopic.Publish(r.Context(), event)
}
