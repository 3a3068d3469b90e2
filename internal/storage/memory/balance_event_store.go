package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

// BalanceEventStore is an in-memory implementation of storage.BalanceEventStore.
type BalanceEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BalanceEvent // keyed by id
}

// NewBalanceEventStore creates a new in-memory balance event store.
func NewBalanceEventStore() *BalanceEventStore {
	return &BalanceEventStore{
		data: make(map[string]*domain.BalanceEvent),
	}
}

// Verify interface compliance at compile time.
var _ storage.BalanceEventStore = (*BalanceEventStore)(nil)

// Insert appends a balance event. Returns ErrDuplicateKey if the id exists.
func (s *BalanceEventStore) Insert(_ context.Context, e *domain.BalanceEvent) error {
	if e == nil || e.ID == "" || e.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.ID]; exists {
		return storage.ErrDuplicateKey
	}

	eventCopy := *e
	s.data[e.ID] = &eventCopy
	return nil
}

// GetByPublicKey retrieves the most recent events for a key, newest first.
func (s *BalanceEventStore) GetByPublicKey(_ context.Context, publicKey string, limit int) ([]*domain.BalanceEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BalanceEvent
	for _, e := range s.data {
		if e.PublicKey == publicKey {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].ProcessedAt.Equal(result[j].ProcessedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].ProcessedAt.After(result[j].ProcessedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
