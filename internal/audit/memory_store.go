package audit

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
	seen    map[string]struct{}
	failErr error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func sourceKey(e *Entry) string {
	return fmt.Sprintf("%s:%d:%d", e.Topic, e.Partition, e.Offset)
}

func (s *MemoryStore) Save(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	key := sourceKey(entry)
	if _, ok := s.seen[key]; ok {
		return ErrDuplicateEntry
	}
	s.seen[key] = struct{}{}
	clone := *entry
	s.entries = append(s.entries, &clone)
	return nil
}

func (s *MemoryStore) ListByCompanies(ctx context.Context, all bool, companyIDs []string, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allowed := make(map[string]struct{}, len(companyIDs))
	for _, id := range companyIDs {
		allowed[id] = struct{}{}
	}

	out := make([]*Entry, 0)
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if !all {
			if _, ok := allowed[e.CompanyID]; !ok {
				continue
			}
		}
		clone := *e
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Entries returns everything saved so far, in insertion order.
func (s *MemoryStore) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// FailWith makes subsequent Save calls return err.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}
