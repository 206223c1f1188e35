// Package storage provides the in-process FileStorage used in development
// and tests. Production uses the Supabase storage client.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	analysisSvc "figmant/internal/domain/services/analysis"
)

type object struct {
	contentType string
	data        []byte
}

// Memory keeps uploaded objects in a map
type Memory struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

// NewMemory creates an empty store. Object URLs are baseURL + "/" + path.
func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (m *Memory) Upload(ctx context.Context, path, contentType string, body io.Reader) (*analysisSvc.StoredObject, error) {
	if path == "" {
		return nil, fmt.Errorf("object path is required")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.objects[path] = object{contentType: contentType, data: buf.Bytes()}
	m.mu.Unlock()

	return &analysisSvc.StoredObject{Path: path, URL: m.baseURL + "/" + path}, nil
}

// Get returns a stored object's bytes and content type
func (m *Memory) Get(path string) ([]byte, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
