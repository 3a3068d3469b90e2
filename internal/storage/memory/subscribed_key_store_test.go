package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

func TestSubscribedKeyStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	key := domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionBoth)
	stored, err := store.Upsert(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key.ID, stored.ID)
	assert.True(t, stored.IsActive)

	got, err := store.GetByPublicKey(ctx, "pk1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)

	_, err = store.GetByPublicKey(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubscribedKeyStore_UpsertReactivatesKeepingID(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	first := domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionAccount)
	_, err := store.Upsert(ctx, first)
	require.NoError(t, err)

	removed, err := store.Deactivate(ctx, "u1", "pk1")
	require.NoError(t, err)
	assert.True(t, removed)

	// Re-registration reactivates the same row, id preserved, kind updated.
	second := domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionBoth)
	stored, err := store.Upsert(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.True(t, stored.IsActive)
	assert.Equal(t, domain.SubscriptionBoth, stored.Kind)
}

func TestSubscribedKeyStore_DeactivateMissing(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	removed, err := store.Deactivate(ctx, "u1", "pk1")
	require.NoError(t, err)
	assert.False(t, removed)

	// Deactivating twice reports false the second time.
	_, err = store.Upsert(ctx, domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionBoth))
	require.NoError(t, err)
	removed, err = store.Deactivate(ctx, "u1", "pk1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = store.Deactivate(ctx, "u1", "pk1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestSubscribedKeyStore_GetActiveSorted(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	for _, pk := range []string{"ccc", "aaa", "bbb"} {
		_, err := store.Upsert(ctx, domain.NewSubscribedKey("u1", pk, domain.SubscriptionBoth))
		require.NoError(t, err)
	}
	_, err := store.Upsert(ctx, domain.NewSubscribedKey("u2", "ddd", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Deactivate(ctx, "u2", "ddd")
	require.NoError(t, err)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "aaa", active[0].PublicKey)
	assert.Equal(t, "bbb", active[1].PublicKey)
	assert.Equal(t, "ccc", active[2].PublicKey)
}

func TestSubscribedKeyStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	_, err := store.Upsert(ctx, domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, domain.NewSubscribedKey("u1", "pk2", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, domain.NewSubscribedKey("u2", "pk3", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Deactivate(ctx, "u2", "pk3")
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalKeys)
	assert.Equal(t, int64(2), stats.ActiveKeys)
	assert.Equal(t, int64(1), stats.InactiveKeys)
	assert.Equal(t, int64(2), stats.UniqueOwners)
}

func TestSubscribedKeyStore_GetByOwner(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	_, err := store.Upsert(ctx, domain.NewSubscribedKey("u1", "pk1", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Upsert(ctx, domain.NewSubscribedKey("u1", "pk2", domain.SubscriptionBoth))
	require.NoError(t, err)
	_, err = store.Deactivate(ctx, "u1", "pk2")
	require.NoError(t, err)

	// Inactive rows are still listed for the owner.
	keys, err := store.GetByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	keys, err = store.GetByOwner(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSubscribedKeyStore_InvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewSubscribedKeyStore()

	_, err := store.Upsert(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.Upsert(ctx, &domain.SubscribedKey{OwnerID: "u1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
