package storage

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

type memoryObject struct {
	data        []byte
	contentType string
}

// MemoryStorage keeps objects in process memory. Used in development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	baseURL string

	// FailSave makes Save return an error for paths it matches
	FailSave func(path string) bool
	// FailDelete makes Delete return an error
	FailDelete bool
}

func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string]memoryObject),
		baseURL: baseURL,
	}
}

func (s *MemoryStorage) Save(path string, data io.Reader, contentType string) error {
	if s.FailSave != nil && s.FailSave(path) {
		return fmt.Errorf("failed to save %s", path)
	}

	buf, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = memoryObject{data: buf, contentType: contentType}
	return nil
}

func (s *MemoryStorage) Delete(paths ...string) error {
	if s.FailDelete {
		return fmt.Errorf("failed to delete %d objects", len(paths))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, path := range paths {
		delete(s.objects, path)
	}
	return nil
}

func (s *MemoryStorage) URL(path string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, path)
}

func (s *MemoryStorage) SignedURL(path string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s/%s?expires=%d", s.baseURL, path, time.Now().Add(expiry).Unix()), nil
}

// Object returns the stored bytes and content type.
func (s *MemoryStorage) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, "", false
	}
	return bytes.Clone(obj.data), obj.contentType, true
}

// Paths lists stored object paths in sorted order.
func (s *MemoryStorage) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, 0, len(s.objects))
	for path := range s.objects {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
