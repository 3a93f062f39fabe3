package admission

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status string `json:"status"`
	KV     bool   `json:"kv"`
}

// Health reports liveness, including the KV store's reachability when the
// shared backend is in use. Probes are throttled by probeLimiter so a
// health-check storm cannot itself become load on a struggling KV store.
//
//encore:api public raw method=GET path=/health
func Health(w http.ResponseWriter, r *http.Request) {
	if svc == nil {
		http.Error(w, "service not initialized", http.StatusInternalServerError)
		return
	}
	svc.handleHealth(w, r)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	ok := true

	if s.kv != nil {
		if s.probeLimiter.Allow() {
			ok = s.kv.Ping(r.Context()) == nil
			s.mu.Lock()
			s.lastKVOk = ok
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			ok = s.lastKVOk
			s.mu.Unlock()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(healthResponse{Status: "ok", KV: ok})
}
