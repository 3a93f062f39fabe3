package admission

import (
	"context"
	"time"

	"encore.dev/cron"
)

// staleAfter bounds how long an idle in-process limiter entry survives
// before the sweep reclaims it, keeping the keyed-lock registry's
// otherwise-monotonic growth in check.
const staleAfter = 10 * time.Minute

// This job runs StaleSweep every five minutes via Encore cron.
var _ = cron.NewJob("admission-stale-sweep", cron.JobConfig{
	Title:    "Evict stale in-process rate-limit state",
	Schedule: "*/5 * * * *",
	Endpoint: StaleSweep,
})

// StaleSweep reclaims in-process limiter entries untouched for staleAfter.
// No-op when the service runs the shared backend, since that state is
// lifecycle-managed by the KV store's own TTLs.
//
//encore:api private
func StaleSweep(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	svc.sweepStale()
	return nil
}

func (s *Service) sweepStale() {
	if s.memTB != nil {
		s.memTB.CleanupStale(staleAfter)
	}
	if s.memSW != nil {
		s.memSW.CleanupStale(staleAfter)
	}
}
