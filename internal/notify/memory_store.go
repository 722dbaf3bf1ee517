package notify

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu            sync.RWMutex
	notifications []*Notification
	failErr       error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	clone := *n
	s.notifications = append(s.notifications, &clone)
	return nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]*Notification, 0, limit)
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *s.notifications[i]
		out = append(out, &clone)
	}
	return out, nil
}

// FailWith makes subsequent Save calls return err.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}
