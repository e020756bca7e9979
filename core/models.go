package core

// StatusActive is the realtime status stamped on a live transcript.
const StatusActive = "ACTIVE"

// Word is one timed transcript token. Times and durations are in
// milliseconds from the start of the session.
type Word struct {
	Duration int64  `json:"duration"`
	Time     int64  `json:"time"`
	Value    string `json:"value"`
	Speaker  string `json:"speaker"`
}

type Speaker struct {
	Name string `json:"name"`
}

type Realtime struct {
	Status string `json:"status"`
}

// Transcript is the rolling derived document for one ingest session. The
// words sequence is append-only within a run; the whole document is
// rewritten on every update cycle.
type Transcript struct {
	Words      []Word             `json:"words"`
	Speakers   map[string]Speaker `json:"speakers"`
	Paragraphs map[string]any     `json:"paragraphs"`
	Realtime   Realtime           `json:"realtime"`
	Title      string             `json:"title"`
	UpdateTime string             `json:"updateTime,omitempty"`
}

// NewTranscript returns the canonical empty document shape.
func NewTranscript(title string) *Transcript {
	return &Transcript{
		Words: []Word{},
		Speakers: map[string]Speaker{
			"speaker1": {Name: "Speaker 1"},
			"speaker2": {Name: "Speaker 2"},
		},
		Paragraphs: map[string]any{},
		Realtime:   Realtime{Status: StatusActive},
		Title:      title,
	}
}

// Entry is a contiguous run of words by one speaker, the unit stored in
// the transcript index.
type Entry struct {
	Start   int64  `json:"start"`
	End     int64  `json:"end"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

type Hit struct {
	Score   float64 `json:"score"`
	Start   int64   `json:"start"`
	End     int64   `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker"`
}

type QueryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	TopK      int    `json:"top_k"`
}

type QueryResponse struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
	Hits      []Hit  `json:"hits"`
}
