package automation

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// CaptureStore persists screenshot bytes and returns a handle for them.
type CaptureStore interface {
	Save(ctx context.Context, siteID string, data []byte) (string, error)
}

// MemoryCaptureStore keeps captures in memory under capture:// handles.
type MemoryCaptureStore struct {
	mu       sync.RWMutex
	captures map[string][]byte
}

// NewMemoryCaptureStore creates an empty in-memory store.
func NewMemoryCaptureStore() *MemoryCaptureStore {
	return &MemoryCaptureStore{captures: make(map[string][]byte)}
}

// Save stores a copy of data.
func (m *MemoryCaptureStore) Save(_ context.Context, siteID string, data []byte) (string, error) {
	handle := fmt.Sprintf("capture://%s/%s", siteID, uuid.NewString())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.captures[handle] = append([]byte(nil), data...)
	return handle, nil
}

// Get returns the capture stored under handle.
func (m *MemoryCaptureStore) Get(handle string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.captures[handle]
	return data, ok
}

// Len returns the number of stored captures.
func (m *MemoryCaptureStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.captures)
}

// FileCaptureStore writes captures into Dir and returns their paths.
type FileCaptureStore struct {
	Dir string
}

// Save writes data to <Dir>/<site>-<id><ext>, where ext follows the sniffed
// content type (.png for browser screenshots, .html for static snapshots).
func (f *FileCaptureStore) Save(_ context.Context, siteID string, data []byte) (string, error) {
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s%s", sanitizeName(siteID), uuid.NewString()[:8], captureExt(data))
	path := filepath.Join(f.Dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write capture: %w", err)
	}
	return path, nil
}

func captureExt(data []byte) string {
	contentType := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "text/html"):
		return ".html"
	default:
		return ".bin"
	}
}

func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
