package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
)

func TestTransactionEventStore_Postgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTransactionEventStore(pool)

	t.Run("insert and get with metadata", func(t *testing.T) {
		e := domain.NewTransactionEvent("pk1", "sig-full", 42)
		e.Kind = domain.TransactionSend
		e.Status = domain.StatusSuccess
		e.Amount = ptr(int64(-1_000_000))
		e.Mint = ptr(domain.NativeMint)
		e.From = ptr("pk1")
		e.To = ptr("pk-other")
		e.Fee = ptr(int64(5000))
		require.NoError(t, store.Insert(ctx, e))

		events, err := store.GetByPublicKey(ctx, "pk1", 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		got := events[0]
		assert.Equal(t, domain.TransactionSend, got.Kind)
		assert.Equal(t, domain.StatusSuccess, got.Status)
		require.NotNil(t, got.Amount)
		assert.Equal(t, int64(-1_000_000), *got.Amount)
		require.NotNil(t, got.Fee)
		assert.Equal(t, int64(5000), *got.Fee)
	})

	t.Run("insert with absent metadata", func(t *testing.T) {
		e := domain.NewTransactionEvent("pk2", "sig-bare", 43)
		require.NoError(t, store.Insert(ctx, e))

		events, err := store.GetByPublicKey(ctx, "pk2", 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		got := events[0]
		assert.Equal(t, domain.TransactionUnknown, got.Kind)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.Nil(t, got.Amount)
		assert.Nil(t, got.Mint)
		assert.Nil(t, got.From)
		assert.Nil(t, got.To)
		assert.Nil(t, got.Fee)
		assert.Nil(t, got.BlockTime)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		e := domain.NewTransactionEvent("pk3", "sig-dup", 44)
		require.NoError(t, store.Insert(ctx, e))
		assert.ErrorIs(t, store.Insert(ctx, e), storage.ErrDuplicateKey)
	})
}
