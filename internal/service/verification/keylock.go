package verification

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// keyLock serializes work per key. Entries are reference counted and removed
// once the last holder releases them.
type keyLock struct {
	locks *xsync.MapOf[string, *refMutex]
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: xsync.NewMapOf[string, *refMutex]()}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *keyLock) Lock(key string) (unlock func()) {
	m, _ := k.locks.Compute(key, func(cur *refMutex, loaded bool) (*refMutex, bool) {
		if !loaded {
			cur = &refMutex{}
		}
		cur.refs++
		return cur, false
	})
	m.mu.Lock()

	return func() {
		m.mu.Unlock()
		k.locks.Compute(key, func(cur *refMutex, loaded bool) (*refMutex, bool) {
			cur.refs--
			return cur, cur.refs == 0
		})
	}
}

func (k *keyLock) size() int {
	return k.locks.Size()
}
