package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	keys     []string
	types    []string
	failures map[string]int // key -> remaining Put failures
}

func newFakeStore() *fakeStore {
	return &fakeStore{failures: map[string]int{}}
}

func (f *fakeStore) Put(key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[key] > 0 {
		f.failures[key]--
		return errors.New("injected put failure")
	}
	f.keys = append(f.keys, key)
	f.types = append(f.types, contentType)
	return nil
}

func (f *fakeStore) putKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

func writeSegment(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("tsdata-"+name), 0644); err != nil {
		t.Fatal(err)
	}
}

func newTestWatcher(dir string, store *fakeStore) *Watcher {
	return NewWatcher(dir, "session1", store, "ingest-live", 10*time.Millisecond, 3)
}

func TestScanCycleUploadsInAscendingIndexOrder(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	// lexical order would put segment_10 before segment_2
	writeSegment(t, dir, "segment_10.ts")
	writeSegment(t, dir, "segment_2.ts")
	writeSegment(t, dir, "segment_0.ts")

	w := newTestWatcher(dir, store)
	w.scanCycle()

	want := []string{
		"ingest-live/session1/highres.000000.ts",
		"ingest-live/session1/highres.000002.ts",
		"ingest-live/session1/highres.000010.ts",
	}
	got := store.putKeys()
	if len(got) != len(want) {
		t.Fatalf("got %d uploads, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("upload %d = %q, want %q", i, got[i], want[i])
		}
	}
	for _, ct := range store.types {
		if ct != "video/MP2T" {
			t.Errorf("segment content type = %q, want video/MP2T", ct)
		}
	}
}

func TestScanCycleUploadsEachFileExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")
	writeSegment(t, dir, "segment_001.ts")

	w := newTestWatcher(dir, store)
	w.scanCycle()
	w.scanCycle()
	w.scanCycle()

	if n := len(store.putKeys()); n != 2 {
		t.Errorf("expected 2 uploads across repeated cycles, got %d", n)
	}
	if w.Uploaded() != 2 {
		t.Errorf("upload counter = %d, want 2", w.Uploaded())
	}
}

func TestScanCycleIgnoresNonSegmentFiles(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")
	writeSegment(t, dir, "stream.m3u8")
	writeSegment(t, dir, "segment_abc.ts")
	writeSegment(t, dir, "other_001.ts")

	w := newTestWatcher(dir, store)
	w.scanCycle()

	got := store.putKeys()
	if len(got) != 1 || got[0] != "ingest-live/session1/highres.000000.ts" {
		t.Errorf("unexpected uploads: %v", got)
	}
}

func TestScanCycleDropsWhenAlreadyRunning(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")

	w := newTestWatcher(dir, store)
	w.scanning.Store(true)
	if done := w.scanCycle(); done {
		t.Error("overlapping cycle must be dropped, not run")
	}
	if len(store.putKeys()) != 0 {
		t.Errorf("dropped cycle must not upload, got %v", store.putKeys())
	}
}

func TestFailedUploadIsRetriedAndOrderPreserved(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")
	writeSegment(t, dir, "segment_001.ts")
	writeSegment(t, dir, "segment_002.ts")
	store.failures["ingest-live/session1/highres.000001.ts"] = 1

	w := newTestWatcher(dir, store)
	w.SignalEncoderDone()

	if done := w.scanCycle(); done {
		t.Error("cycle with a failed upload must not report drain")
	}
	// next cycle retries the failed file, later indices follow
	if done := w.scanCycle(); !done {
		t.Error("expected drain after successful retry")
	}

	want := []string{
		"ingest-live/session1/highres.000000.ts",
		"ingest-live/session1/highres.000001.ts",
		"ingest-live/session1/highres.000002.ts",
	}
	got := store.putKeys()
	if len(got) != len(want) {
		t.Fatalf("got uploads %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("upload %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDrainRequiresEncoderCompletion(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")

	w := newTestWatcher(dir, store)
	if done := w.scanCycle(); done {
		t.Error("must not drain before the encoder has finished")
	}
	w.SignalEncoderDone()
	if done := w.scanCycle(); !done {
		t.Error("expected drain once encoder is done and nothing is pending")
	}
	if !w.Drained() {
		t.Error("Drained() should report terminal state")
	}
	if n := len(store.putKeys()); n != 1 {
		t.Errorf("re-poll with no new files performed %d uploads, want 1 total", n)
	}
}

func TestEmptyDirectoryNeverDrains(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(dir, newFakeStore())
	w.SignalEncoderDone()
	if done := w.scanCycle(); done {
		t.Error("a cycle that saw no matching files must not drain")
	}
}

func TestBatchTriggerFiresEveryThirdUpload(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	for _, name := range []string{"segment_000.ts", "segment_001.ts", "segment_002.ts", "segment_003.ts"} {
		writeSegment(t, dir, name)
	}

	w := newTestWatcher(dir, store)
	var triggers []int
	w.OnBatch = func(count int) error {
		triggers = append(triggers, count)
		// the batch boundary must be reached before later files upload
		if count == 3 && len(store.putKeys()) != 3 {
			t.Errorf("trigger at count 3 saw %d uploads", len(store.putKeys()))
		}
		return nil
	}
	w.scanCycle()

	if len(triggers) != 1 || triggers[0] != 3 {
		t.Errorf("triggers = %v, want [3]", triggers)
	}
}

// End-to-end watcher scenario: three segments present at the first cycle,
// three more appear before the second.
func TestTwoCycleScenario(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")
	writeSegment(t, dir, "segment_001.ts")
	writeSegment(t, dir, "segment_002.ts")

	w := newTestWatcher(dir, store)
	w.SignalEncoderDone()
	var triggers []int
	w.OnBatch = func(count int) error {
		triggers = append(triggers, count)
		return nil
	}

	if done := w.scanCycle(); done {
		t.Fatal("first cycle should not drain, more segments are coming")
	}

	// Encoder was actually still writing: late arrivals before cycle two.
	// The encoderDone gate makes this safe to re-check on the next cycle.
	writeSegment(t, dir, "segment_003.ts")
	writeSegment(t, dir, "segment_004.ts")
	writeSegment(t, dir, "segment_005.ts")

	if done := w.scanCycle(); !done {
		t.Fatal("second cycle should drain")
	}

	want := []string{
		"ingest-live/session1/highres.000000.ts",
		"ingest-live/session1/highres.000001.ts",
		"ingest-live/session1/highres.000002.ts",
		"ingest-live/session1/highres.000003.ts",
		"ingest-live/session1/highres.000004.ts",
		"ingest-live/session1/highres.000005.ts",
	}
	got := store.putKeys()
	if len(got) != len(want) {
		t.Fatalf("got uploads %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("upload %d = %q, want %q", i, got[i], want[i])
		}
	}
	if len(triggers) != 2 || triggers[0] != 3 || triggers[1] != 6 {
		t.Errorf("triggers = %v, want [3 6]", triggers)
	}
}

func TestRunStopsAfterDrain(t *testing.T) {
	dir := t.TempDir()
	store := newFakeStore()
	writeSegment(t, dir, "segment_000.ts")

	w := newTestWatcher(dir, store)
	w.SignalEncoderDone()

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after drain")
	}
}
