package ingest

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"streamIngest/config"
	"streamIngest/core"
	"streamIngest/storage"
	"streamIngest/transcript"
)

// Orchestrator sequences one ingest run: reset the derived document,
// allocate a session, segment the input, upload the manifest, then drain
// the segment directory through the watcher.
type Orchestrator struct {
	cfg   *config.Config
	store storage.ObjectStore
	index storage.TranscriptIndex

	mu        sync.Mutex
	sessionID string
	watcher   *Watcher
}

func NewOrchestrator(cfg *config.Config, store storage.ObjectStore, index storage.TranscriptIndex) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store, index: index}
}

type Status struct {
	SessionID        string `json:"session_id"`
	SegmentsUploaded int64  `json:"segments_uploaded"`
	Drained          bool   `json:"drained"`
}

func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{SessionID: o.sessionID}
	if o.watcher != nil {
		st.SegmentsUploaded = o.watcher.Uploaded()
		st.Drained = o.watcher.Drained()
	}
	return st
}

// Run executes one session end to end and blocks until the watcher
// detects drain. Encoder failure is fatal to the session and propagates;
// everything downstream degrades by logging.
func (o *Orchestrator) Run(inputFile string) error {
	updater := transcript.NewUpdater(filepath.Join(core.DataRoot(), transcript.RemoteName), o.store, o.index, o.cfg.RemotePrefix)
	if err := updater.Reset(); err != nil {
		return err
	}

	sessionID := core.NewSessionID()
	sessionDir := filepath.Join(core.DataRoot(), "output", sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	log.Printf("Starting ingest session %s", sessionID)

	if dur, err := ProbeDuration(inputFile); err != nil {
		log.Printf("Warning: could not probe input duration: %v", err)
	} else {
		log.Printf("Input duration: %.1fs", dur)
	}

	watcher := NewWatcher(sessionDir, sessionID, o.store, o.cfg.RemotePrefix,
		time.Duration(o.cfg.PollIntervalSec)*time.Second, o.cfg.BatchSize)
	watcher.OnBatch = func(segmentCount int) error {
		return updater.Update(sessionID, segmentCount)
	}
	o.mu.Lock()
	o.sessionID = sessionID
	o.watcher = watcher
	o.mu.Unlock()

	seg := NewSegmenter(o.cfg.FFmpegPath)
	if err := seg.Run(inputFile, sessionDir); err != nil {
		return fmt.Errorf("ffmpeg segmentation: %w", err)
	}
	log.Printf("FFmpeg segmentation complete")

	if err := o.uploadManifest(sessionDir, sessionID); err != nil {
		log.Printf("Error uploading manifest: %v", err)
	}

	watcher.SignalEncoderDone()
	watcher.Run()
	return nil
}

func (o *Orchestrator) uploadManifest(sessionDir, sessionID string) error {
	path := filepath.Join(sessionDir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	key := core.RemoteKey(o.cfg.RemotePrefix, sessionID, ManifestName)
	log.Printf("Uploading: %s as %s", path, key)
	return o.store.Put(key, data, core.ContentTypeFor(path))
}
