package archive

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/provtools/provtrace/pkg/provio"
)

// MemoryStore is an in-process archive for development and testing.
// Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory archive.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string]record{}}
}

// Put stores a document, replacing any previous one for the session id.
func (s *MemoryStore) Put(_ context.Context, doc *provio.Document) error {
	if doc.Manifest.SessionID == "" {
		return fmt.Errorf("document has no session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[doc.Manifest.SessionID] = record{
		Entry:    entryFor(doc, time.Now().UTC()),
		Document: doc,
	}
	return nil
}

// Get fetches a session's document.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (*provio.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Document, nil
}

// List returns summaries, most recently stored first.
func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]Entry, 0, len(s.recs))
	for _, rec := range s.recs {
		entries = append(entries, rec.Entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Stored.After(entries[j].Stored)
	})
	return entries, nil
}

// Delete removes a session's document.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.recs, sessionID)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close(context.Context) error { return nil }
