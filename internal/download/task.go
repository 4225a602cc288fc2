// Package download drives whole-track downloads into the offline store
// through a bounded-concurrency task queue with progress reporting.
package download

import "time"

// Task states. A task is owned by the coordinator until it reaches a
// terminal state (Downloaded or Failed).
const (
	StatePending     = "pending"
	StateDownloading = "downloading"
	StateDownloaded  = "downloaded"
	StateFailed      = "failed"
)

// Task is one whole-track download request. At most one task per track id
// is ever in a non-terminal state.
type Task struct {
	TrackID         string
	SourceURI       string
	Quality         string
	State           string
	ProgressPercent float64
	Attempt         int
	Priority        int // higher runs first; 0 is FIFO default
	SizeBytes       int64
	EnqueuedAt      time.Time
}

// Terminal reports whether the task has finished, successfully or not.
func (t Task) Terminal() bool {
	return t.State == StateDownloaded || t.State == StateFailed
}
