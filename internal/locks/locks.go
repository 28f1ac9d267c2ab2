// Package locks provides advisory per-key mutual exclusion for
// writers touching a student's collection file. Two injections into
// the same collection must not interleave: both would compute the same
// max-id offset and collide, even though SQLite serializes the
// low-level writes. Readers (the analytics path) never take these
// locks.
package locks

import "sync"

// Keyed hands out one mutex per key. Keys are student identities, so
// the map stays bounded by the student population.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Keyed {
	return &Keyed{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the key's lock is held and returns the release
// function.
func (k *Keyed) Acquire(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
