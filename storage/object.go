package storage

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ObjectStore durably stores named byte blobs. Implementations must make
// a single Put attempt; retry policy belongs to the caller.
type ObjectStore interface {
	Put(key string, data []byte, contentType string) error
}

// DirObjectStore writes blobs under a local bucket directory. It is the
// default backend and the durable stand-in when no remote gateway is
// configured.
type DirObjectStore struct {
	Root string
}

func NewDirObjectStore(root string) (*DirObjectStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create object store root: %w", err)
	}
	return &DirObjectStore{Root: root}, nil
}

func (s *DirObjectStore) Put(key string, data []byte, contentType string) error {
	path := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	return nil
}

// HTTPObjectStore PUTs blobs to an S3-compatible gateway or upload proxy.
// Authentication is the gateway's concern (presigned base URL or
// network-level trust); the client only names the blob and tags its type.
type HTTPObjectStore struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPObjectStore(baseURL string) (*HTTPObjectStore, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid object store URL %q", baseURL)
	}
	return &HTTPObjectStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (s *HTTPObjectStore) Put(key string, data []byte, contentType string) error {
	req, err := http.NewRequest(http.MethodPut, s.BaseURL+"/"+key, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("put %s: unexpected status %s", key, resp.Status)
	}
	return nil
}

// InitObjectStore selects the object store backend from OBJECT_STORE
// ("dir" or "http"), falling back to the local directory store when the
// configuration is unusable.
func InitObjectStore(dataRoot string) (ObjectStore, error) {
	kind := strings.ToLower(strings.TrimSpace(os.Getenv("OBJECT_STORE")))
	if kind == "http" {
		baseURL := os.Getenv("OBJECT_STORE_URL")
		s, err := NewHTTPObjectStore(baseURL)
		if err != nil {
			fmt.Printf("Warning: Failed to initialize HTTP object store (%v), falling back to dir store\n", err)
			return NewDirObjectStore(filepath.Join(dataRoot, "bucket"))
		}
		return s, nil
	}
	return NewDirObjectStore(filepath.Join(dataRoot, "bucket"))
}
