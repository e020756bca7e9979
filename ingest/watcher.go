package ingest

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"streamIngest/core"
	"streamIngest/storage"
)

var segmentPattern = regexp.MustCompile(`^segment_(\d+)\.ts$`)

// Watcher polls a session directory for encoder-produced segment files
// and drives each new file through the object store exactly once, in
// ascending index order. State is session-scoped: one watcher per run.
type Watcher struct {
	Dir       string
	SessionID string
	Store     storage.ObjectStore
	Prefix    string
	Interval  time.Duration
	BatchSize int

	// OnBatch fires synchronously after every BatchSize-th successful
	// upload, before the next file is touched. The argument is the total
	// successful upload count so far.
	OnBatch func(segmentCount int) error

	tracker     *Tracker
	uploaded    atomic.Int64
	scanning    atomic.Bool
	encoderDone atomic.Bool
	drained     atomic.Bool
}

func NewWatcher(dir, sessionID string, store storage.ObjectStore, prefix string, interval time.Duration, batchSize int) *Watcher {
	return &Watcher{
		Dir:       dir,
		SessionID: sessionID,
		Store:     store,
		Prefix:    prefix,
		Interval:  interval,
		BatchSize: batchSize,
		tracker:   NewTracker(),
	}
}

// SignalEncoderDone gates drain detection: directory emptiness alone is
// not trusted while the encoder may still be writing.
func (w *Watcher) SignalEncoderDone() {
	w.encoderDone.Store(true)
}

func (w *Watcher) Uploaded() int64 { return w.uploaded.Load() }

func (w *Watcher) Drained() bool { return w.drained.Load() }

// Run polls on the configured interval until drain is detected. It blocks
// the caller; there is no external cancellation, matching the rest of the
// pipeline (a hung upload stalls, never crashes).
func (w *Watcher) Run() {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for range ticker.C {
		if w.scanCycle() {
			log.Printf("All segments processed")
			return
		}
	}
}

// scanCycle performs one scan. It returns true once every matching file
// seen has been uploaded and the encoder has finished. A cycle that fires
// while the previous one is still running is dropped, not queued.
func (w *Watcher) scanCycle() bool {
	if !w.scanning.CompareAndSwap(false, true) {
		return false
	}
	defer w.scanning.Store(false)

	segs, err := w.listSegments()
	if err != nil {
		log.Printf("Error polling directory: %v", err)
		return false
	}

	for _, seg := range segs {
		path := filepath.Join(w.Dir, seg.name)
		if w.tracker.Has(path) {
			continue
		}
		if err := w.uploadSegment(path, seg.index); err != nil {
			// The file stays untracked and the cycle ends here, so the
			// retry on the next cycle keeps upload order ascending.
			log.Printf("Error uploading %s: %v", seg.name, err)
			return false
		}
		w.tracker.MarkUploaded(path)
		count := int(w.uploaded.Add(1))
		if count%w.BatchSize == 0 && w.OnBatch != nil {
			if err := w.OnBatch(count); err != nil {
				log.Printf("Error updating transcript: %v", err)
			}
		}
	}

	if !w.encoderDone.Load() || len(segs) == 0 {
		return false
	}
	for _, seg := range segs {
		if !w.tracker.Has(filepath.Join(w.Dir, seg.name)) {
			return false
		}
	}
	w.drained.Store(true)
	return true
}

type segmentFile struct {
	index int
	name  string
}

// listSegments returns the matching files in ascending index order.
// Filesystem listing order is not assumed reliable.
func (w *Watcher) listSegments() ([]segmentFile, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, err
	}
	segs := make([]segmentFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		i, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		segs = append(segs, segmentFile{index: i, name: e.Name()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].index < segs[j].index })
	return segs, nil
}

func (w *Watcher) uploadSegment(path string, index int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key := core.RemoteKey(w.Prefix, w.SessionID, core.SegmentKey(index))
	log.Printf("Uploading: %s as %s", path, key)
	return w.Store.Put(key, data, core.ContentTypeFor(path))
}
