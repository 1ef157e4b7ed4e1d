package events

import (
	"context"
	"sync"
)

// MemoryProcessedStore is a process-local Tracker for development.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: make(map[string]struct{})}
}

func (s *MemoryProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[normalizeProvider(provider)+":"+eventID]
	return ok, nil
}

func (s *MemoryProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	if eventID == "" {
		return false, ErrMissingEventID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeProvider(provider) + ":" + eventID
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}
	return true, nil
}
