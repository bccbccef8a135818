package compensation

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for the default in-memory backend and
// for tests.
type MemoryStore struct {
	mu      sync.Mutex
	pending []Pending
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Enqueue(ctx context.Context, p Pending) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.pending {
		if existing == p {
			return nil
		}
	}
	s.pending = append(s.pending, p)
	return nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.pending) {
		limit = len(s.pending)
	}
	out := make([]Pending, limit)
	copy(out, s.pending[:limit])
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, sagaID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.pending {
		if p.SagaID == sagaID && p.Step == step {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

var _ Store = (*MemoryStore)(nil)
