package memory

import (
	"sync"

	"github.com/krew-solutions/ascetic-query-go/asceticquery/query/plan"
)

// Store holds named collections of nested records.
type Store struct {
	mu          sync.RWMutex
	collections map[string][]plan.Row
}

func NewStore() *Store {
	return &Store{collections: make(map[string][]plan.Row)}
}

func (s *Store) Insert(collection string, rows ...plan.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.collections[collection] = append(s.collections[collection], plan.Clone(row))
	}
}

// Collection returns a deep copy of the collection.
func (s *Store) Collection(name string) []plan.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.collections[name]
	result := make([]plan.Row, len(rows))
	for i, row := range rows {
		result[i] = plan.Clone(row)
	}
	return result
}

func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}
