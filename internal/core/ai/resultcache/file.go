package resultcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore JSON 檔案快取，鍵為食譜 slug
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]Entry
}

// NewFileStore 讀取既有快取檔，毀損或不存在時視為空快取
func NewFileStore(path string) (*FileStore, error) {
	store := &FileStore{path: path, entries: map[string]Entry{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if err := json.Unmarshal(data, &store.entries); err != nil {
		store.entries = map[string]Entry{}
	}
	return store, nil
}

// Contains 回報 slug 是否已有快取
func (s *FileStore) Contains(_ context.Context, slug string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[slug]
	return ok
}

// Put 寫入一筆並同步落盤
func (s *FileStore) Put(_ context.Context, slug string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[slug] = entry
	return s.flushLocked()
}

func (s *FileStore) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}
