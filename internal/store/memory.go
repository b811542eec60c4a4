package store

import (
	"context"
	"sync"

	"github.com/stellarlinkco/pharm/internal/medication"
)

// MemoryStore keeps the document in memory. LoadErr and SaveErr, when set,
// are returned instead of touching the document.
type MemoryStore struct {
	mu      sync.Mutex
	doc     *medication.Document
	saves   int
	LoadErr error
	SaveErr error
}

// NewMemoryStore returns a store holding a copy of doc; nil means no document yet.
func NewMemoryStore(doc *medication.Document) *MemoryStore {
	s := &MemoryStore{}
	if doc != nil {
		s.doc = doc.Clone()
	}
	return s
}

func (s *MemoryStore) Load(ctx context.Context) (*medication.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	if s.doc == nil {
		return nil, ErrNoDocument
	}
	return s.doc.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, doc *medication.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.doc = doc.Clone()
	s.saves++
	return nil
}

// Saves returns how many successful saves happened.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// SetErrors swaps the injected errors under the lock.
func (s *MemoryStore) SetErrors(load, save error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadErr = load
	s.SaveErr = save
}
