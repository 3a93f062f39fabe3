package ratelimit

import "sync"

// KeyedLockRegistry hands out a per-key mutex with amortized O(1)
// acquisition, using the sync.Map.LoadOrStore get-or-create idiom to
// lazily allocate one lock per key. The registry's own guard covers only
// the map lookup/insert, never the returned mutex, so independent keys
// never block each other. A per-key lock is needed (rather than a
// lock-free atomic bucket) because each admission decision is a
// multi-field read-modify-write that doesn't reduce to a single
// compare-and-swap.
//
// There is no eviction of idle locks: the registry grows monotonically
// with the live key-set. Periodic cleanup of stale keys (see
// admission/sweep.go) is what bounds this in practice.
type KeyedLockRegistry struct {
	locks sync.Map // string -> *sync.Mutex
}

// NewKeyedLockRegistry creates an empty registry.
func NewKeyedLockRegistry() *KeyedLockRegistry {
	return &KeyedLockRegistry{}
}

// LockFor returns the mutex associated with key, creating it on first use.
// LockFor(k) always returns the same *sync.Mutex instance for the same k
// across the registry's lifetime.
func (r *KeyedLockRegistry) LockFor(key string) *sync.Mutex {
	if v, ok := r.locks.Load(key); ok {
		return v.(*sync.Mutex)
	}
	actual, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// Delete removes a key's lock from the registry. Callers must hold the
// key's lock (obtained via LockFor) before calling Delete, and must not
// use the lock again afterwards — a fresh LockFor call after Delete
// allocates a brand new mutex.
func (r *KeyedLockRegistry) Delete(key string) {
	r.locks.Delete(key)
}

// Keys returns a snapshot of all keys currently registered. Used by
// periodic sweeps to find candidates for state eviction.
func (r *KeyedLockRegistry) Keys() []string {
	var keys []string
	r.locks.Range(func(k, _ any) bool {
		keys = append(keys, k.(string))
		return true
	})
	return keys
}
