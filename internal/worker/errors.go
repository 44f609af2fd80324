package worker

import "errors"

// Sentinel errors for pool operations
var (
	// ErrPoolStopped indicates Shutdown has been called
	ErrPoolStopped = errors.New("worker pool stopped")

	// ErrNilTask indicates a nil task was submitted
	ErrNilTask = errors.New("task cannot be nil")

	// ErrStopTimeout indicates in-flight tasks did not finish within the
	// grace period and their context was cancelled
	ErrStopTimeout = errors.New("timeout waiting for tasks to finish")
)
