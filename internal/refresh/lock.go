package refresh

import "sync/atomic"

// runLock provides non-blocking lock semantics for bulk regeneration, so a
// second request fails fast instead of queueing behind a long run.
type runLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire returns true if the caller now holds the lock
func (l *runLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release must only be called by the holder
func (l *runLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run is in progress
func (l *runLock) Held() bool {
	return l.state.Load() == 1
}
