package transcript

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"streamIngest/core"
	"streamIngest/storage"
)

const (
	initialTitle = "Transcript"
	defaultTitle = "Default Title"

	// RemoteName is the derived document's name under the session key.
	RemoteName = "transcript.json"
)

// Updater maintains the rolling transcript document: one local file,
// reloaded, appended to, rewritten and pushed remotely on every trigger.
type Updater struct {
	Path   string
	Store  storage.ObjectStore
	Index  storage.TranscriptIndex
	Prefix string
}

func NewUpdater(path string, store storage.ObjectStore, index storage.TranscriptIndex, prefix string) *Updater {
	return &Updater{Path: path, Store: store, Index: index, Prefix: prefix}
}

// Reset deletes any prior transcript file and writes the canonical empty
// shape. It is a fresh start, not a resume: every run begins empty.
func (u *Updater) Reset() error {
	if _, err := os.Stat(u.Path); err == nil {
		if err := os.Remove(u.Path); err != nil {
			return fmt.Errorf("remove transcript file: %w", err)
		}
	}
	if err := os.WriteFile(u.Path, core.MustJSON(core.NewTranscript(initialTitle)), 0644); err != nil {
		return fmt.Errorf("write transcript file: %w", err)
	}
	log.Printf("Created fresh %s", u.Path)
	return nil
}

// Update runs one cycle for the given upload count: load the working
// document (degrading to the canonical shape on any parse problem),
// append the synthesized batch, persist the whole file and push the same
// bytes remotely. The returned error covers persist/push only; the caller
// logs it and carries on.
func (u *Updater) Update(sessionID string, segmentCount int) error {
	doc := u.load()

	batch := SynthesizeBatch(segmentCount)
	doc.Words = append(doc.Words, batch...)
	doc.UpdateTime = time.Now().UTC().Format(time.RFC3339)

	data := core.MustJSON(doc)
	if err := os.WriteFile(u.Path, data, 0644); err != nil {
		return fmt.Errorf("persist transcript: %w", err)
	}

	if u.Index != nil {
		if n := u.Index.Upsert(sessionID, BatchEntries(batch)); n == 0 {
			fmt.Printf("Warning: transcript index upsert stored no entries for segment %d\n", segmentCount)
		}
	}

	key := core.RemoteKey(u.Prefix, sessionID, RemoteName)
	if err := u.Store.Put(key, data, core.ContentTypeFor(u.Path)); err != nil {
		return fmt.Errorf("push transcript: %w", err)
	}

	log.Printf("Updated transcript for segment %d, total words: %d", segmentCount, len(doc.Words))
	return nil
}

// load reads the working document from disk. Malformed content is never
// fatal: an unreadable or unparseable file degrades to the canonical
// shape, and individual fields are coerced back to it piecemeal.
func (u *Updater) load() *core.Transcript {
	doc := core.NewTranscript(defaultTitle)

	data, err := os.ReadFile(u.Path)
	if err != nil {
		return doc
	}

	var loose struct {
		Words      json.RawMessage `json:"words"`
		Speakers   json.RawMessage `json:"speakers"`
		Paragraphs json.RawMessage `json:"paragraphs"`
		Realtime   json.RawMessage `json:"realtime"`
		Title      json.RawMessage `json:"title"`
	}
	if err := json.Unmarshal(data, &loose); err != nil {
		log.Printf("Error reading transcript file: %v", err)
		return doc
	}

	var words []core.Word
	if err := json.Unmarshal(loose.Words, &words); err == nil && words != nil {
		doc.Words = words
	}
	var speakers map[string]core.Speaker
	if err := json.Unmarshal(loose.Speakers, &speakers); err == nil && len(speakers) > 0 {
		doc.Speakers = speakers
	}
	var paragraphs map[string]any
	if err := json.Unmarshal(loose.Paragraphs, &paragraphs); err == nil && paragraphs != nil {
		doc.Paragraphs = paragraphs
	}
	var realtime core.Realtime
	if err := json.Unmarshal(loose.Realtime, &realtime); err == nil && realtime.Status != "" {
		doc.Realtime = realtime
	}
	var title string
	if err := json.Unmarshal(loose.Title, &title); err == nil && title != "" {
		doc.Title = title
	}

	return doc
}
