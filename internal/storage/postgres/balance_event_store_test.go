package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

func TestBalanceEventStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBalanceEventStore(pool)

	t.Run("insert and get", func(t *testing.T) {
		e := domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, 5_000_000_000,
			domain.ChangeTransfer, ptr("sig-abc"), 100)
		blockTime := time.Now().UTC().Truncate(time.Millisecond)
		e.BlockTime = &blockTime
		require.NoError(t, store.Insert(ctx, e))

		events, err := store.GetByPublicKey(ctx, "pk1", 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		got := events[0]
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, int64(5_000_000_000), got.NewBalance)
		assert.Equal(t, int64(5_000_000_000), got.ChangeAmount)
		assert.Equal(t, domain.ChangeTransfer, got.ChangeKind)
		require.NotNil(t, got.TxSignature)
		assert.Equal(t, "sig-abc", *got.TxSignature)
		require.NotNil(t, got.BlockTime)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		e := domain.NewBalanceEvent("u1", "pk2", domain.NativeMint, 0, 1, domain.ChangeTransfer, nil, 1)
		require.NoError(t, store.Insert(ctx, e))
		assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrDuplicateKey)
	})

	t.Run("newest first with limit", func(t *testing.T) {
		base := time.Now().UTC()
		for i := 0; i < 5; i++ {
			e := domain.NewBalanceEvent("u1", "pk3", domain.NativeMint, int64(i), int64(i+1),
				domain.ChangeTransfer, nil, int64(i))
			e.ProcessedAt = base.Add(time.Duration(i) * time.Second)
			require.NoError(t, store.Insert(ctx, e))
		}

		events, err := store.GetByPublicKey(ctx, "pk3", 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(4), events[0].Slot)
		assert.Equal(t, int64(3), events[1].Slot)
	})

	t.Run("nil optional fields round-trip", func(t *testing.T) {
		e := domain.NewBalanceEvent("u1", "pk4", "SomeMint", 10, 4, domain.ChangeDecrease, nil, 7)
		require.NoError(t, store.Insert(ctx, e))

		events, err := store.GetByPublicKey(ctx, "pk4", 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Nil(t, events[0].TxSignature)
		assert.Nil(t, events[0].BlockTime)
		assert.Equal(t, int64(-6), events[0].ChangeAmount)
	})
}
