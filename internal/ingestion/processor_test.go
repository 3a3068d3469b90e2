package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/storage"
	"wallet-indexer/internal/storage/memory"
)

type recordingForwarder struct {
	mu           sync.Mutex
	balances     []*domain.BalanceEvent
	transactions []*domain.TransactionEvent
	failWith     error
}

func (f *recordingForwarder) ForwardBalanceUpdate(_ context.Context, e *domain.BalanceEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.balances = append(f.balances, e)
	return nil
}

func (f *recordingForwarder) ForwardTransactionEvent(_ context.Context, e *domain.TransactionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.transactions = append(f.transactions, e)
	return nil
}

func (f *recordingForwarder) balanceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.balances)
}

func (f *recordingForwarder) transactionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transactions)
}

type failingBalanceStore struct {
	storage.BalanceEventStore
	err error
}

func (s *failingBalanceStore) Insert(context.Context, *domain.BalanceEvent) error {
	return s.err
}

func TestBalanceProcessor_PersistsAndForwards(t *testing.T) {
	queue := NewQueue[*domain.BalanceEvent]()
	store := memory.NewBalanceEventStore()
	forwarder := &recordingForwarder{}

	proc := NewBalanceProcessor(queue, store, forwarder, nil, quietLogger())

	event := domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, 100, domain.ChangeTransfer, nil, 5)
	queue.Push(event)
	queue.Close()

	proc.Run(context.Background())

	stored, err := store.GetByPublicKey(context.Background(), "pk1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, event.ID, stored[0].ID)
	assert.Equal(t, 1, forwarder.balanceCount())
}

func TestBalanceProcessor_DuplicateStillForwards(t *testing.T) {
	queue := NewQueue[*domain.BalanceEvent]()
	store := memory.NewBalanceEventStore()
	forwarder := &recordingForwarder{}

	proc := NewBalanceProcessor(queue, store, forwarder, nil, quietLogger())

	event := domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, 100, domain.ChangeTransfer, nil, 5)
	require.NoError(t, store.Insert(context.Background(), event))

	queue.Push(event)
	queue.Close()
	proc.Run(context.Background())

	// Redelivery of an already-durable event still reaches the ledger.
	assert.Equal(t, 1, forwarder.balanceCount())
}

func TestBalanceProcessor_StoreFailureDropsEvent(t *testing.T) {
	queue := NewQueue[*domain.BalanceEvent]()
	forwarder := &recordingForwarder{}
	store := &failingBalanceStore{err: errors.New("connection lost")}

	proc := NewBalanceProcessor(queue, store, forwarder, nil, quietLogger())

	queue.Push(domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, 1, domain.ChangeTransfer, nil, 1))
	queue.Close()
	proc.Run(context.Background())

	// Not durable, so not forwarded either.
	assert.Equal(t, 0, forwarder.balanceCount())
}

func TestBalanceProcessor_ForwardFailureIsNotRetried(t *testing.T) {
	queue := NewQueue[*domain.BalanceEvent]()
	store := memory.NewBalanceEventStore()
	forwarder := &recordingForwarder{failWith: errors.New("ledger down")}

	proc := NewBalanceProcessor(queue, store, forwarder, nil, quietLogger())

	event := domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, 1, domain.ChangeTransfer, nil, 1)
	queue.Push(event)
	queue.Close()
	proc.Run(context.Background())

	// The event stays durable even though delivery failed.
	stored, err := store.GetByPublicKey(context.Background(), "pk1", 10)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 0, forwarder.balanceCount())
}

func TestTransactionProcessor_PersistsAndForwards(t *testing.T) {
	queue := NewQueue[*domain.TransactionEvent]()
	store := memory.NewTransactionEventStore()
	forwarder := &recordingForwarder{}

	proc := NewTransactionProcessor(queue, store, forwarder, nil, quietLogger())

	event := domain.NewTransactionEvent("pk1", "sig1", 7)
	queue.Push(event)
	queue.Close()
	proc.Run(context.Background())

	stored, err := store.GetByPublicKey(context.Background(), "pk1", 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "sig1", stored[0].Signature)
	assert.Equal(t, 1, forwarder.transactionCount())
}

func TestProcessors_FailingTransactionPathDoesNotBlockBalances(t *testing.T) {
	balanceQueue := NewQueue[*domain.BalanceEvent]()
	transactionQueue := NewQueue[*domain.TransactionEvent]()

	balanceForwarder := &recordingForwarder{}
	transactionForwarder := &recordingForwarder{failWith: errors.New("ledger down")}

	balanceProc := NewBalanceProcessor(balanceQueue, memory.NewBalanceEventStore(), balanceForwarder, nil, quietLogger())
	transactionProc := NewTransactionProcessor(transactionQueue, memory.NewTransactionEventStore(), transactionForwarder, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); balanceProc.Run(ctx) }()
	go func() { defer wg.Done(); transactionProc.Run(ctx) }()

	for i := 0; i < 5; i++ {
		balanceQueue.Push(domain.NewBalanceEvent("u1", "pk1", domain.NativeMint, 0, int64(i), domain.ChangeTransfer, nil, int64(i)))
		transactionQueue.Push(domain.NewTransactionEvent("pk1", "sig", int64(i)))
	}

	require.Eventually(t, func() bool {
		return balanceForwarder.balanceCount() == 5
	}, 5*time.Second, 5*time.Millisecond)

	balanceQueue.Close()
	transactionQueue.Close()
	wg.Wait()

	assert.Equal(t, 0, transactionForwarder.transactionCount())
}

func TestProcessors_StopWhenContextCancelled(t *testing.T) {
	queue := NewQueue[*domain.BalanceEvent]()
	proc := NewBalanceProcessor(queue, memory.NewBalanceEventStore(), &recordingForwarder{}, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("processor did not stop on cancel")
	}
}
