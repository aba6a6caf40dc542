package ingress

import (
	"context"
	"sync"
)

// SeenStore records the pac_ids that have already been admitted.
type SeenStore interface {
	// Contains reports whether pacID was admitted before.
	Contains(ctx context.Context, pacID string) (bool, error)
	// Add records pacID atomically. added is false if it was already present.
	Add(ctx context.Context, pacID string) (added bool, err error)
	// Remove forgets pacID. Removing an absent id is not an error.
	Remove(ctx context.Context, pacID string) error
	// Len returns the number of recorded ids.
	Len(ctx context.Context) (int, error)
	// Reset forgets every recorded id.
	Reset(ctx context.Context) error
}

// MemorySeenStore is a process-local SeenStore.
type MemorySeenStore struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{ids: make(map[string]struct{})}
}

func (s *MemorySeenStore) Contains(_ context.Context, pacID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[pacID]
	return ok, nil
}

func (s *MemorySeenStore) Add(_ context.Context, pacID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[pacID]; ok {
		return false, nil
	}
	s.ids[pacID] = struct{}{}
	return true, nil
}

func (s *MemorySeenStore) Remove(_ context.Context, pacID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, pacID)
	return nil
}

func (s *MemorySeenStore) Len(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids), nil
}

func (s *MemorySeenStore) Reset(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
	return nil
}
