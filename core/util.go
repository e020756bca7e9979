package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

func DataRoot() string {
	if v := os.Getenv("DATA_ROOT"); v != "" {
		return v
	}
	return filepath.Join(".", "data")
}

// NewSessionID allocates a timestamp-derived session identifier.
func NewSessionID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// ContentTypeFor picks the upload content type from the file extension.
// Playlists are the default branch: anything that is not a transport
// stream segment or a still frame is treated as an HLS playlist.
func ContentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return "video/MP2T"
	case ".jpg":
		return "image/jpeg"
	default:
		return "application/vnd.apple.mpegurl"
	}
}

// RemoteKey builds an object key under the fixed ingest prefix.
func RemoteKey(prefix, sessionID, name string) string {
	return prefix + "/" + sessionID + "/" + name
}

// SegmentKey is the remote name for the nth uploaded segment.
func SegmentKey(index int) string {
	return fmt.Sprintf("highres.%06d.ts", index)
}

func MustJSON(v any) []byte {
	b, _ := json.MarshalIndent(v, "", "  ")
	return b
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "write json error: %v", err)
	}
}
