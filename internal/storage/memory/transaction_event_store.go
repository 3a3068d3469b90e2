package memory

import (
	"context"
	"sort"
	"sync"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

// TransactionEventStore is an in-memory implementation of storage.TransactionEventStore.
type TransactionEventStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TransactionEvent // keyed by id
}

// NewTransactionEventStore creates a new in-memory transaction event store.
func NewTransactionEventStore() *TransactionEventStore {
	return &TransactionEventStore{
		data: make(map[string]*domain.TransactionEvent),
	}
}

// Verify interface compliance at compile time.
var _ storage.TransactionEventStore = (*TransactionEventStore)(nil)

// Insert appends a transaction event. Returns ErrDuplicateKey if the id exists.
func (s *TransactionEventStore) Insert(_ context.Context, e *domain.TransactionEvent) error {
	if e == nil || e.ID == "" || e.Signature == "" {
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
func (s *TransactionEventStore) GetByPublicKey(_ context.Context, publicKey string, limit int) ([]*domain.TransactionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TransactionEvent
	for _, e := range s.data {
		if e.PublicKey == publicKey {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
