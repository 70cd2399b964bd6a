package service

import "sync"

// RunLocks serializes mutating operations per run id. Transitions on the same
// run execute one at a time; different runs proceed independently. Lock
// entries are kept for the process lifetime, which is bounded by the number
// of runs an instance touches.
type RunLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunLocks creates a new run lock registry
func NewRunLocks() *RunLocks {
	return &RunLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the lock for a run id and returns the release function.
func (l *RunLocks) Lock(runID string) func() {
	l.mu.Lock()
	lock, ok := l.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[runID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
