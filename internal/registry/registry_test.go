package registry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/solana"
	"wallet-indexer/internal/storage"
	"wallet-indexer/internal/storage/memory"
)

func testKey(t *testing.T, fill byte) string {
	t.Helper()
	raw := bytes.Repeat([]byte{fill}, 32)
	raw[0] |= 0xF0 // keep the value above 58^43 so the encoding is 44 chars for any fill
	key := base58.Encode(raw)
	require.Len(t, key, 44)
	return key
}

func newTestRegistry() (*Registry, *memory.SubscribedKeyStore) {
	store := memory.NewSubscribedKeyStore()
	return New(store, nil), store
}

func TestRegistry_AddRemoveLifecycle(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	key := testKey(t, 0x01)

	stored, err := reg.Add(ctx, "u1", key, domain.SubscriptionBoth)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
	assert.True(t, reg.IsWatched(key))

	removed, err := reg.Remove(ctx, "u1", key)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, reg.IsWatched(key))

	// Second removal reports false without error.
	removed, err = reg.Remove(ctx, "u1", key)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRegistry_AddRejectsInvalidKeys(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	cases := map[string]string{
		"too short":       "abc",
		"empty":           "",
		"43 chars":        strings.Repeat("1", 43),
		"bad alphabet":    strings.Repeat("0", 44),
		"wrong byte size": strings.Repeat("1", 44),
	}
	for name, key := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Add(ctx, "u1", key, domain.SubscriptionBoth)
			assert.ErrorIs(t, err, solana.ErrInvalidPublicKey)
			assert.False(t, reg.IsWatched(key))
		})
	}

	// Nothing reached the store or cache.
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RemoveUnknownKey(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	removed, err := reg.Remove(ctx, "u1", testKey(t, 0x02))
	require.NoError(t, err)
	assert.False(t, removed)
}

type failingKeyStore struct {
	storage.SubscribedKeyStore
	upsertErr error
}

func (s *failingKeyStore) Upsert(ctx context.Context, key *domain.SubscribedKey) (*domain.SubscribedKey, error) {
	if s.upsertErr != nil {
		return nil, s.upsertErr
	}
	return s.SubscribedKeyStore.Upsert(ctx, key)
}

func TestRegistry_CacheUntouchedOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := &failingKeyStore{
		SubscribedKeyStore: memory.NewSubscribedKeyStore(),
		upsertErr:          errors.New("connection refused"),
	}
	reg := New(store, nil)
	key := testKey(t, 0x03)

	_, err := reg.Add(ctx, "u1", key, domain.SubscriptionBoth)
	require.Error(t, err)
	assert.False(t, reg.IsWatched(key))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_BulkAddContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	good1 := testKey(t, 0x04)
	good2 := testKey(t, 0x05)
	entries := []BulkEntry{
		{OwnerID: "u1", PublicKey: good1, Kind: domain.SubscriptionBoth},
		{OwnerID: "u1", PublicKey: "bogus", Kind: domain.SubscriptionBoth},
		{OwnerID: "u1", PublicKey: good2, Kind: domain.SubscriptionAccount},
	}

	result := reg.BulkAdd(ctx, entries)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "bogus", result.Errors[0].PublicKey)

	assert.True(t, reg.IsWatched(good1))
	assert.True(t, reg.IsWatched(good2))
}

func TestRegistry_SnapshotSortedAndImmutable(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()

	keys := []string{testKey(t, 0x30), testKey(t, 0x10), testKey(t, 0x20)}
	for _, key := range keys {
		_, err := reg.Add(ctx, "u1", key, domain.SubscriptionBoth)
		require.NoError(t, err)
	}

	snap := reg.Snapshot()
	require.Len(t, snap.Keys, 3)
	for i := 1; i < len(snap.Keys); i++ {
		assert.Less(t, snap.Keys[i-1].PublicKey, snap.Keys[i].PublicKey)
	}

	// Mutations after the snapshot do not affect it.
	_, err := reg.Remove(ctx, "u1", snap.Keys[0].PublicKey)
	require.NoError(t, err)
	assert.Len(t, snap.Keys, 3)
	assert.Len(t, reg.Snapshot().Keys, 2)
}

func TestRegistry_RefreshRebuildsCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSubscribedKeyStore()
	reg := New(store, nil)
	key := testKey(t, 0x06)

	// Row written behind the registry's back is invisible until Refresh.
	_, err := store.Upsert(ctx, domain.NewSubscribedKey("u1", key, domain.SubscriptionBoth))
	require.NoError(t, err)
	assert.False(t, reg.IsWatched(key))

	require.NoError(t, reg.Refresh(ctx))
	assert.True(t, reg.IsWatched(key))

	watched, ok := reg.Lookup(key)
	require.True(t, ok)
	assert.Equal(t, "u1", watched.OwnerID)

	// Deactivated rows drop out on the next refresh.
	_, err = store.Deactivate(ctx, "u1", key)
	require.NoError(t, err)
	require.NoError(t, reg.Refresh(ctx))
	assert.False(t, reg.IsWatched(key))
}

func TestRegistry_ReadThroughQueries(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry()
	key := testKey(t, 0x07)

	_, err := reg.Add(ctx, "u1", key, domain.SubscriptionAccount)
	require.NoError(t, err)

	byOwner, err := reg.KeysByOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byOwner, 1)
	assert.Equal(t, key, byOwner[0].PublicKey)

	byKey, err := reg.KeyByPublicKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "u1", byKey.OwnerID)

	_, err = reg.KeyByPublicKey(ctx, testKey(t, 0x08))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := reg.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ActiveKeys)
}
