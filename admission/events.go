package admission

import (
	"time"

	"encore.dev/pubsub"
)

// RateLimitExhaustedEvent is published whenever a shared-state limiter
// denies a request or falls back to a failure mode, so subscribers
// (alerting, autoscaling) can react without polling the audit table.
type RateLimitExhaustedEvent struct {
	Key          string    `json:"key"`
	Algorithm    string    `json:"algorithm"`
	Backend      string    `json:"backend"`
	Mode         string    `json:"mode,omitempty"`
	RetryAfterMs int64     `json:"retry_after_ms"`
	At           time.Time `json:"at"`
}

// RateLimitExhaustedTopic is published to on every denial or failure-mode
// fallback from the shared backend.
var RateLimitExhaustedTopic = pubsub.NewTopic[*RateLimitExhaustedEvent](
	"rate-limit-exhausted",
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)
