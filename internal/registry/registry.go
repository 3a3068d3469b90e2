// Package registry maintains the watch-list of subscribed public keys: a
// durable record in storage fronted by an in-memory cache for the stream
// hot path.
package registry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/solana"
	"wallet-indexer/internal/storage"
)

// Registry owns subscribed_keys. All mutations go through it so the cache
// and the durable store cannot diverge: the store is written first and the
// cache updated only after the write succeeds.
type Registry struct {
	store  storage.SubscribedKeyStore
	logger *log.Logger

	mu    sync.RWMutex
	cache map[string]domain.WatchedKey // keyed by public key
}

// New creates a Registry. The cache starts empty; call Refresh to load the
// active watch-list from storage.
func New(store storage.SubscribedKeyStore, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		store:  store,
		logger: logger,
		cache:  make(map[string]domain.WatchedKey),
	}
}

// Add validates and registers a public key for an owner. The store write
// happens first; the cache is only updated after it succeeds, so a failed
// write leaves the cache untouched.
func (r *Registry) Add(ctx context.Context, ownerID, publicKey string, kind domain.SubscriptionKind) (*domain.SubscribedKey, error) {
	if err := solana.ValidatePublicKey(publicKey); err != nil {
		return nil, err
	}
	if _, err := domain.ParseSubscriptionKind(string(kind)); err != nil {
		return nil, err
	}

	stored, err := r.store.Upsert(ctx, domain.NewSubscribedKey(ownerID, publicKey, kind))
	if err != nil {
		return nil, fmt.Errorf("add key %s: %w", publicKey, err)
	}

	r.mu.Lock()
	r.cache[publicKey] = domain.WatchedKey{
		OwnerID:   stored.OwnerID,
		PublicKey: stored.PublicKey,
		Kind:      stored.Kind,
	}
	r.mu.Unlock()

	r.logger.Printf("[registry] added key %s for owner %s (kind=%s)", publicKey, ownerID, kind)
	return stored, nil
}

// Remove soft-deletes a subscription. Reports whether anything was removed;
// removing an unknown or already-inactive key is not an error. The cache
// entry is dropped only when the store reported a deactivation.
func (r *Registry) Remove(ctx context.Context, ownerID, publicKey string) (bool, error) {
	removed, err := r.store.Deactivate(ctx, ownerID, publicKey)
	if err != nil {
		return false, fmt.Errorf("remove key %s: %w", publicKey, err)
	}
	if !removed {
		return false, nil
	}

	r.mu.Lock()
	if cached, ok := r.cache[publicKey]; ok && cached.OwnerID == ownerID {
		delete(r.cache, publicKey)
	}
	r.mu.Unlock()

	r.logger.Printf("[registry] removed key %s for owner %s", publicKey, ownerID)
	return true, nil
}

// BulkEntry is one key in a bulk registration request.
type BulkEntry struct {
	OwnerID   string
	PublicKey string
	Kind      domain.SubscriptionKind
}

// BulkError reports one failed entry of a bulk registration.
type BulkError struct {
	PublicKey string `json:"public_key"`
	Error     string `json:"error"`
}

// BulkResult summarizes a bulk registration.
type BulkResult struct {
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Errors     []BulkError `json:"errors,omitempty"`
}

// BulkAdd registers many keys, continuing past per-key failures. Each key
// succeeds or fails independently.
func (r *Registry) BulkAdd(ctx context.Context, entries []BulkEntry) *BulkResult {
	result := &BulkResult{}
	for _, entry := range entries {
		if _, err := r.Add(ctx, entry.OwnerID, entry.PublicKey, entry.Kind); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, BulkError{
				PublicKey: entry.PublicKey,
				Error:     err.Error(),
			})
			continue
		}
		result.Successful++
	}
	return result
}

// IsWatched reports whether a public key is in the active watch-list.
func (r *Registry) IsWatched(publicKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[publicKey]
	return ok
}

// Lookup returns the cache entry for a public key.
func (r *Registry) Lookup(publicKey string) (domain.WatchedKey, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.cache[publicKey]
	return key, ok
}

// Snapshot returns an immutable copy of the active watch-list ordered by
// public key. Safe to hold for the lifetime of a stream connection.
func (r *Registry) Snapshot() domain.WatchSnapshot {
	r.mu.RLock()
	keys := make([]domain.WatchedKey, 0, len(r.cache))
	for _, key := range r.cache {
		keys = append(keys, key)
	}
	r.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].PublicKey < keys[j].PublicKey
	})

	return domain.WatchSnapshot{Keys: keys, TakenAt: time.Now().UTC()}
}

// Len returns the number of cached active keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// Refresh rebuilds the cache wholesale from the durable store. On store
// failure the previous cache is kept.
func (r *Registry) Refresh(ctx context.Context) error {
	active, err := r.store.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("refresh watch-list: %w", err)
	}

	fresh := make(map[string]domain.WatchedKey, len(active))
	for _, key := range active {
		fresh[key.PublicKey] = domain.WatchedKey{
			OwnerID:   key.OwnerID,
			PublicKey: key.PublicKey,
			Kind:      key.Kind,
		}
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()

	return nil
}

// KeysByOwner lists all subscriptions for an owner, active and inactive.
func (r *Registry) KeysByOwner(ctx context.Context, ownerID string) ([]*domain.SubscribedKey, error) {
	keys, err := r.store.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("keys by owner %s: %w", ownerID, err)
	}
	return keys, nil
}

// KeyByPublicKey returns the active subscription for a public key.
// Returns storage.ErrNotFound when no active row exists.
func (r *Registry) KeyByPublicKey(ctx context.Context, publicKey string) (*domain.SubscribedKey, error) {
	return r.store.GetByPublicKey(ctx, publicKey)
}

// Stats returns aggregate counts from the durable store.
func (r *Registry) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	stats, err := r.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry stats: %w", err)
	}
	return stats, nil
}
