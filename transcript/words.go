package transcript

import (
	"strconv"

	"streamIngest/core"
)

const (
	wordDurationMs = 150
	speakerGapMs   = 100
)

// SynthesizeBatch produces the fixed word batch for one trigger. The batch
// stands in for an externally computed enrichment payload keyed by the
// upload counter: four tokens from speaker1 followed by two from speaker2,
// with strictly increasing start times derived from the counter.
func SynthesizeBatch(segmentCount int) []core.Word {
	n := strconv.Itoa(segmentCount)
	speaker1Words := []string{"word", "from", "segment", n}
	speaker2Words := []string{"example", n}

	words := make([]core.Word, 0, len(speaker1Words)+len(speaker2Words))
	currentTime := int64(segmentCount) * 1000

	for _, w := range speaker1Words {
		words = append(words, core.Word{Duration: wordDurationMs, Time: currentTime, Value: w, Speaker: "speaker1"})
		currentTime += wordDurationMs
	}

	currentTime += speakerGapMs

	for _, w := range speaker2Words {
		words = append(words, core.Word{Duration: wordDurationMs, Time: currentTime, Value: w, Speaker: "speaker2"})
		currentTime += wordDurationMs
	}

	return words
}

// BatchEntries collapses a word batch into per-speaker runs for the
// transcript index.
func BatchEntries(words []core.Word) []core.Entry {
	var entries []core.Entry
	for _, w := range words {
		if n := len(entries); n > 0 && entries[n-1].Speaker == w.Speaker {
			entries[n-1].End = w.Time + w.Duration
			entries[n-1].Text += " " + w.Value
			continue
		}
		entries = append(entries, core.Entry{
			Start:   w.Time,
			End:     w.Time + w.Duration,
			Text:    w.Value,
			Speaker: w.Speaker,
		})
	}
	return entries
}
