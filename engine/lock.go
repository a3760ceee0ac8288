package engine

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/lua-runtime/errors"
)

// SessionLock is the mutual-exclusion primitive guarding every entry into
// the embedded interpreter. It is recursive per owning goroutine: the
// goroutine that holds the lock may re-acquire it without blocking, and
// must release once per acquisition.
//
// The fast path (uncontended same-goroutine re-entry) is an atomic owner
// compare plus a depth increment; the blocking mutex is only touched on
// cross-goroutine contention. The depth counter is written only by the
// owning goroutine while it holds the mutex, so it needs no atomics.
type SessionLock struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int64
}

// Acquire takes the lock for the calling goroutine. With blocking=false it
// returns false instead of waiting when another goroutine holds the lock.
// Re-entry by the owning goroutine always succeeds immediately.
func (l *SessionLock) Acquire(blocking bool) bool {
	gid := goid()
	if l.owner.Load() == gid {
		l.depth++
		return true
	}
	if blocking {
		l.mu.Lock()
	} else if !l.mu.TryLock() {
		return false
	}
	l.owner.Store(gid)
	l.depth = 1
	return true
}

// Release undoes one Acquire. Releasing a lock the calling goroutine does
// not own, or releasing past zero depth, is a programmer error and is
// reported, never silently absorbed.
func (l *SessionLock) Release() error {
	gid := goid()
	if l.owner.Load() != gid {
		if l.owner.Load() == 0 {
			return errors.Misuse("session lock released while not held")
		}
		return errors.Misuse("session lock released by goroutine %d which does not own it", gid)
	}
	l.depth--
	if l.depth == 0 {
		l.owner.Store(0)
		l.mu.Unlock()
	}
	return nil
}

// OwnedByCaller reports whether the calling goroutine holds the lock.
func (l *SessionLock) OwnedByCaller() bool {
	return l.owner.Load() == goid()
}

// Depth returns the current recursion depth. Only meaningful to the
// owning goroutine; other callers see a racy snapshot.
func (l *SessionLock) Depth() int64 {
	if !l.OwnedByCaller() {
		return 0
	}
	return l.depth
}
