package memory

import (
	"context"
	"sync"

	audit "landreg/pkg/platform/audit"
)

// InMemoryStore keeps audit entries in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	failing error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// FailWith makes every subsequent Append return err. Pass nil to recover.
func (s *InMemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing = err
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return s.failing
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) ListByRecord(_ context.Context, tableName, recordID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.TableName == tableName && e.RecordID == recordID {
			out = append(out, e)
		}
	}
	return out, nil
}

// All returns every entry (test helper).
func (s *InMemoryStore) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Entry{}, s.entries...)
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
