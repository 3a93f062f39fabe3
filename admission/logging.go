// Structured decision logging: one JSON line per admission decision,
// tagged with a correlation ID for tracing a single request across logs.
package admission

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"encore.app/pkg/ratelimit"
)

// logDecision writes one structured JSON log line per admission decision.
// An allowed decision logs at Info, a denial at Warn, and a failure-mode
// fallback at Error.
func logDecision(key string, res ratelimit.Result, duration time.Duration) {
	entry := map[string]interface{}{
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"request_id":     uuid.New().String(),
		"key":            key,
		"allowed":        res.Allowed,
		"remaining":      res.Remaining,
		"retry_after_ms": res.RetryAfterMs,
		"duration_ms":    duration.Milliseconds(),
	}
	for k, v := range res.Metadata {
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] failed to marshal decision log entry: %v", err)
		return
	}

	if _, failing := res.Metadata["mode"]; failing {
		log.Printf("[ERROR] %s", string(data))
	} else if !res.Allowed {
		log.Printf("[WARN] %s", string(data))
	} else {
		log.Printf("[INFO] %s", string(data))
	}
}
