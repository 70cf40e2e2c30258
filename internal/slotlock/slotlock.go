// Package slotlock provides keyed mutual exclusion for booking attempts.
// Locking is scoped per (court, window) slot key: holders of the same key
// serialize, different keys never block each other.  Two backends satisfy
// the Locker contract: an in-process mutex map for single-node deployments
// and a Redis lock for multi-node ones.
package slotlock

import (
	"context"
	"errors"
	"sync"
)

// ErrLockTimeout is returned when a lock cannot be acquired within the
// caller's deadline.  It is distinct from a resource conflict: the caller
// may retry.
var ErrLockTimeout = errors.New("slot lock acquisition timed out")

// Locker runs fn while holding exclusive ownership of key.  The lock is
// released when fn returns, whether or not it errored, so no lock can
// outlive its critical section.  Acquisition blocks cooperatively until
// the context expires, in which case ErrLockTimeout is returned and fn is
// never invoked.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// MutexMap is the in-process Locker.  Each active key owns a channel
// semaphore; entries are reference counted and removed once the last
// waiter leaves, so the map does not grow with the booking history.
type MutexMap struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewMutexMap returns an empty in-process lock map.
func NewMutexMap() *MutexMap {
	return &MutexMap{slots: make(map[string]*slot)}
}

// WithLock implements Locker.
func (m *MutexMap) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	s := m.acquireRef(key)
	defer m.releaseRef(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ErrLockTimeout
	}
	defer func() { <-s.sem }()

	return fn(ctx)
}

func (m *MutexMap) acquireRef(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *MutexMap) releaseRef(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}
