package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

// SubscribedKeyStore is an in-memory implementation of storage.SubscribedKeyStore.
type SubscribedKeyStore struct {
	mu   sync.RWMutex
	data map[ownerKeyPair]*domain.SubscribedKey
}

type ownerKeyPair struct {
	ownerID   string
	publicKey string
}

// NewSubscribedKeyStore creates a new in-memory subscribed key store.
func NewSubscribedKeyStore() *SubscribedKeyStore {
	return &SubscribedKeyStore{
		data: make(map[ownerKeyPair]*domain.SubscribedKey),
	}
}

// Verify interface compliance at compile time.
var _ storage.SubscribedKeyStore = (*SubscribedKeyStore)(nil)

// Upsert inserts a subscription or reactivates the existing row, keeping the
// original id.
func (s *SubscribedKeyStore) Upsert(_ context.Context, key *domain.SubscribedKey) (*domain.SubscribedKey, error) {
	if key == nil || key.OwnerID == "" || key.PublicKey == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := ownerKeyPair{ownerID: key.OwnerID, publicKey: key.PublicKey}
	if existing, ok := s.data[pair]; ok {
		existing.IsActive = true
		existing.Kind = key.Kind
		existing.UpdatedAt = time.Now().UTC()
		stored := *existing
		return &stored, nil
	}

	// Store a copy to prevent external mutation
	keyCopy := *key
	s.data[pair] = &keyCopy
	stored := keyCopy
	return &stored, nil
}

// Deactivate soft-deletes the active subscription for (owner_id, public_key).
func (s *SubscribedKeyStore) Deactivate(_ context.Context, ownerID, publicKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.data[ownerKeyPair{ownerID: ownerID, publicKey: publicKey}]
	if !ok || !key.IsActive {
		return false, nil
	}
	key.IsActive = false
	key.UpdatedAt = time.Now().UTC()
	return true, nil
}

// GetActive retrieves all active subscriptions ordered by public key.
func (s *SubscribedKeyStore) GetActive(_ context.Context) ([]*domain.SubscribedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubscribedKey
	for _, key := range s.data {
		if key.IsActive {
			keyCopy := *key
			result = append(result, &keyCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].PublicKey < result[j].PublicKey
	})

	return result, nil
}

// GetByOwner retrieves all subscriptions for an owner, active and not.
func (s *SubscribedKeyStore) GetByOwner(_ context.Context, ownerID string) ([]*domain.SubscribedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubscribedKey
	for _, key := range s.data {
		if key.OwnerID == ownerID {
			keyCopy := *key
			result = append(result, &keyCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].PublicKey < result[j].PublicKey
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// GetByPublicKey retrieves the active subscription for a public key.
func (s *SubscribedKeyStore) GetByPublicKey(_ context.Context, publicKey string) (*domain.SubscribedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.SubscribedKey
	for _, key := range s.data {
		if key.PublicKey != publicKey || !key.IsActive {
			continue
		}
		if latest == nil || key.UpdatedAt.After(latest.UpdatedAt) {
			latest = key
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	keyCopy := *latest
	return &keyCopy, nil
}

// Stats returns aggregate counts over all stored rows.
func (s *SubscribedKeyStore) Stats(_ context.Context) (*domain.RegistryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.RegistryStats{}
	owners := make(map[string]struct{})
	for _, key := range s.data {
		stats.TotalKeys++
		if key.IsActive {
			stats.ActiveKeys++
		} else {
			stats.InactiveKeys++
		}
		owners[key.OwnerID] = struct{}{}
	}
	stats.UniqueOwners = int64(len(owners))

	return stats, nil
}

// Ping always succeeds for the in-memory store.
func (s *SubscribedKeyStore) Ping(_ context.Context) error {
	return nil
}

var _ storage.Pinger = (*SubscribedKeyStore)(nil)
