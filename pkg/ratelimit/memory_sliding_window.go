package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// MemorySlidingWindow is an in-process sliding-window-log limiter. Per key,
// state is a FIFO sequence of event timestamps permitting O(1) front pops,
// following the same RWMutex-guarded-map shape as MemoryTokenBucket.
type MemorySlidingWindow struct {
	cfg   SlidingWindowConfig
	locks *KeyedLockRegistry

	mu    sync.RWMutex
	state map[string][]time.Time
}

// NewMemorySlidingWindow builds an in-process sliding-window limiter.
func NewMemorySlidingWindow(cfg SlidingWindowConfig) (*MemorySlidingWindow, error) {
	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: window_size_ms must be > 0", ErrConfig)
	}
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: max_requests must be > 0", ErrConfig)
	}
	return &MemorySlidingWindow{
		cfg:   cfg,
		locks: NewKeyedLockRegistry(),
		state: make(map[string][]time.Time),
	}, nil
}

// Check admits or denies a request for key under that key's mutex: prune
// entries at or before the cutoff, then admit iff fewer than MaxRequests
// remain in the window.
func (w *MemorySlidingWindow) Check(key string) (Result, error) {
	lock := w.locks.LockFor(key)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	cutoff := now.Add(-w.cfg.WindowSize)

	w.mu.RLock()
	entries := w.state[key]
	w.mu.RUnlock()

	start := 0
	for start < len(entries) && !entries[start].After(cutoff) {
		start++
	}
	entries = entries[start:]

	var res Result
	if int64(len(entries)) < w.cfg.MaxRequests {
		entries = append(entries, now)
		remaining := w.cfg.MaxRequests - int64(len(entries))
		res = allowResult(AlgorithmSlidingWindowLog, BackendMemory, float64(remaining))
	} else {
		oldest := entries[0]
		retryAfterMs := w.cfg.WindowSize.Milliseconds() - now.Sub(oldest).Milliseconds()
		if retryAfterMs < 0 {
			retryAfterMs = 0
		}
		res = denyResult(AlgorithmSlidingWindowLog, BackendMemory, 0, retryAfterMs)
	}

	w.mu.Lock()
	w.state[key] = entries
	w.mu.Unlock()

	return res, nil
}

// CleanupStale drops per-key entry slices that have had no activity within
// olderThan, releasing their keyed locks too.
func (w *MemorySlidingWindow) CleanupStale(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	w.mu.Lock()
	var stale []string
	for k, entries := range w.state {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			stale = append(stale, k)
		}
	}
	for _, k := range stale {
		delete(w.state, k)
	}
	w.mu.Unlock()

	for _, k := range stale {
		w.locks.Delete(k)
	}
	return len(stale)
}
