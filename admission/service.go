// Package admission implements the HTTP admission adapter: it maps an
// incoming request to a client key, invokes the configured rate limiter,
// and translates the result into an HTTP response.
package admission

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"encore.dev/storage/sqldb"

	"encore.app/pkg/kvstore"
	"encore.app/pkg/ratelimit"
)

// healthProbeInterval bounds how often GET /health actually pings the KV
// store, rather than on every call, shielding Redis from a health-check
// storm.
const healthProbeInterval = 200 * time.Millisecond

//encore:service
type Service struct {
	cfg     Config
	limiter ratelimit.Limiter

	// memTB/memSW are non-nil only when cfg.Backend == BackendMemory,
	// giving the periodic sweep (sweep.go) a concrete CleanupStale to call —
	// the ratelimit.Limiter interface deliberately doesn't expose it.
	memTB *ratelimit.MemoryTokenBucket
	memSW *ratelimit.MemorySlidingWindow

	kv           *kvstore.Redis
	probeLimiter *rate.Limiter
	lastKVOk     bool

	audit *AuditLogger

	mu sync.Mutex
}

// auditDB is the admission service's audit database.
var auditDB = sqldb.Named("admission_db")

var (
	svc  *Service
	once sync.Once
)

// initService wires the configured algorithm/backend combination. Called
// automatically by Encore at startup.
func initService() (*Service, error) {
	var initErr error
	once.Do(func() {
		cfg, err := loadConfig()
		if err != nil {
			initErr = err
			return
		}

		al, err := NewAuditLogger(auditDB)
		if err != nil {
			initErr = err
			return
		}

		s := &Service{
			cfg:          cfg,
			probeLimiter: rate.NewLimiter(rate.Every(healthProbeInterval), 1),
			lastKVOk:     true,
			audit:        al,
		}

		if cfg.Backend == ratelimit.BackendShared {
			s.kv = kvstore.NewRedis(cfg.KV)
			if err := s.buildSharedLimiter(); err != nil {
				initErr = err
				return
			}
		} else {
			if err := s.buildMemoryLimiter(); err != nil {
				initErr = err
				return
			}
		}

		svc = s
	})

	return svc, initErr
}

func (s *Service) buildMemoryLimiter() error {
	switch s.cfg.Algorithm {
	case ratelimit.AlgorithmTokenBucket:
		b, err := ratelimit.NewMemoryTokenBucket(s.cfg.TokenBucket)
		if err != nil {
			return err
		}
		s.memTB = b
		s.limiter = b.AsLimiter()
	case ratelimit.AlgorithmSlidingWindowLog:
		w, err := ratelimit.NewMemorySlidingWindow(s.cfg.SlidingWindow)
		if err != nil {
			return err
		}
		s.memSW = w
		s.limiter = w.AsLimiter()
	default:
		return errors.New("admission: unreachable algorithm switch")
	}
	return nil
}

func (s *Service) buildSharedLimiter() error {
	switch s.cfg.Algorithm {
	case ratelimit.AlgorithmTokenBucket:
		b, err := ratelimit.NewSharedTokenBucket(s.cfg.TokenBucket, s.cfg.KV, s.kv)
		if err != nil {
			return err
		}
		s.limiter = b.AsLimiter()
	case ratelimit.AlgorithmSlidingWindowLog:
		w, err := ratelimit.NewSharedSlidingWindow(s.cfg.SlidingWindow, s.cfg.KV, s.kv)
		if err != nil {
			return err
		}
		s.limiter = w.AsLimiter()
	default:
		return errors.New("admission: unreachable algorithm switch")
	}
	return nil
}

