package repository

import (
	"context"
	"sync"

	"github.com/menofreact/whatsapp-sending-engine/session/domain"
)

// MemoryFailureStore keeps failure counters in process memory.
type MemoryFailureStore struct {
	mu     sync.Mutex
	counts map[string]int
}

var _ domain.FailureStore = (*MemoryFailureStore)(nil)

func NewMemoryFailureStore() *MemoryFailureStore {
	return &MemoryFailureStore{counts: make(map[string]int)}
}

func (s *MemoryFailureStore) Increment(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[tenantID]++
	return s.counts[tenantID], nil
}

func (s *MemoryFailureStore) Get(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[tenantID], nil
}

func (s *MemoryFailureStore) Reset(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, tenantID)
	return nil
}
