package ingest

import "sync"

// Tracker remembers which local paths have already been uploaded in this
// session. It makes the watcher's re-poll idempotent: a path transitions
// to uploaded exactly once and is never retried or re-verified after.
type Tracker struct {
	mu       sync.Mutex
	uploaded map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{uploaded: make(map[string]bool)}
}

func (t *Tracker) Has(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uploaded[path]
}

func (t *Tracker) MarkUploaded(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uploaded[path] = true
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.uploaded)
}
