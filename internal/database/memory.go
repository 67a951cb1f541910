package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/leobrain/crawler/internal/crawl"
)

// MemoryStore is an in-memory crawl.ContentStore for development and tests.
// It enforces the same URL uniqueness as the Postgres table.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]crawl.ContentRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]crawl.ContentRecord)}
}

// FindByURL returns the stored record or ErrNotFound.
func (s *MemoryStore) FindByURL(_ context.Context, url string) (*crawl.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

// Insert stores a record, rejecting duplicate URLs with ErrDuplicateURL.
func (s *MemoryStore) Insert(_ context.Context, record crawl.ContentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.URL]; ok {
		return fmt.Errorf("insert content %s: %w", record.URL, ErrDuplicateURL)
	}
	record.CreatedAt = time.Now().UTC()
	s.records[record.URL] = record
	return nil
}

// Len reports how many records are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
