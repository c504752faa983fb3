package sync

import stdsync "sync"

// keyedLocks serializes work per string key. Two concurrent pull
// passes for the same (user, provider) would each miss the other's
// uncommitted materialization, so passes for one key block each other.
type keyedLocks struct {
	mu    stdsync.Mutex
	locks map[string]*stdsync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*stdsync.Mutex)}
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &stdsync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
