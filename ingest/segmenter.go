package ingest

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ManifestName is the playlist file the encoder finalizes on completion.
const ManifestName = "stream.m3u8"

// Segmenter invokes the external encoder to emit an HLS stream into a
// session directory: one manifest plus numbered transport stream segments
// (segment_000.ts, segment_001.ts, ...). The encoding ladder is fixed.
type Segmenter struct {
	FFmpegPath string
}

func NewSegmenter(ffmpegPath string) *Segmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Segmenter{FFmpegPath: ffmpegPath}
}

// Run blocks until the encoder exits. On failure the error propagates to
// the caller; no partial cleanup is performed.
func (s *Segmenter) Run(inputFile, sessionDir string) error {
	cmd := exec.Command(s.FFmpegPath, s.buildArgs(inputFile, sessionDir)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (s *Segmenter) buildArgs(inputFile, sessionDir string) []string {
	return []string{
		"-y",
		"-i", inputFile,
		"-codec:v", "libx264",
		"-codec:a", "aac",
		"-preset", "fast",
		"-b:v", "800k",
		"-hls_time", "5",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(sessionDir, "segment_%03d.ts"),
		filepath.Join(sessionDir, ManifestName),
	}
}

// ProbeDuration reads the input duration in seconds via ffprobe.
func ProbeDuration(path string) (float64, error) {
	cmd := exec.Command("ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
}
