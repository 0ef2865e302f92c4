package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/mohae/deepcopy"
)

// Store implements ports.HistoryStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.DocumentRecord
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.DocumentRecord),
	}
}

// Save persists a deep copy of the record, similar to serialization.
func (s *Store) Save(ctx context.Context, documentID string, record *domain.DocumentRecord) error {
	copied := deepcopy.Copy(record).(*domain.DocumentRecord)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[documentID] = copied
	return nil
}

// Load retrieves a copy of the record so callers can't mutate the store by pointer.
func (s *Store) Load(ctx context.Context, documentID string) (*domain.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.data[documentID]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return deepcopy.Copy(record).(*domain.DocumentRecord), nil
}

// Delete removes the record.
func (s *Store) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, documentID)
	return nil
}

// List returns stored document IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
