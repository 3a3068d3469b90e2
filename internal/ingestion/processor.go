package ingestion

import (
	"context"
	"errors"
	"log"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/storage"
)

// BalanceForwarder delivers balance events to the downstream ledger service.
type BalanceForwarder interface {
	ForwardBalanceUpdate(ctx context.Context, e *domain.BalanceEvent) error
}

// TransactionForwarder delivers transaction events to the downstream ledger
// service.
type TransactionForwarder interface {
	ForwardTransactionEvent(ctx context.Context, e *domain.TransactionEvent) error
}

// EventMirror receives a best-effort copy of every persisted event for
// analytics. May be nil.
type EventMirror interface {
	InsertBalanceEvent(ctx context.Context, e *domain.BalanceEvent) error
	InsertTransactionEvent(ctx context.Context, e *domain.TransactionEvent) error
}

// BalanceProcessor drains the balance queue: persist, forward, mirror.
// Per-event failures are logged and the event dropped; the processor itself
// never stops before its queue is closed and drained.
type BalanceProcessor struct {
	queue     *Queue[*domain.BalanceEvent]
	store     storage.BalanceEventStore
	forwarder BalanceForwarder
	mirror    EventMirror
	logger    *log.Logger
}

// NewBalanceProcessor creates a balance processor. mirror may be nil.
func NewBalanceProcessor(queue *Queue[*domain.BalanceEvent], store storage.BalanceEventStore, forwarder BalanceForwarder, mirror EventMirror, logger *log.Logger) *BalanceProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &BalanceProcessor{
		queue:     queue,
		store:     store,
		forwarder: forwarder,
		mirror:    mirror,
		logger:    logger,
	}
}

// Run processes events until the queue is closed and drained or the context
// is cancelled.
func (p *BalanceProcessor) Run(ctx context.Context) {
	for {
		event, ok := p.queue.Pop(ctx)
		if !ok {
			p.logger.Println("[processor] balance queue drained, stopping")
			return
		}
		observability.UpdateQueueDepth("balance", p.queue.Len())
		p.process(ctx, event)
	}
}

func (p *BalanceProcessor) process(ctx context.Context, event *domain.BalanceEvent) {
	if err := p.store.Insert(ctx, event); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			p.logger.Printf("[processor] persist balance event %s failed: %v", event.ID, err)
			observability.RecordEventError("balance", "store")
			return
		}
		// Duplicate delivery; the event is already durable, still forward.
	} else {
		observability.RecordEventStored("balance")
	}

	// Forward failures are logged, not retried. At-least-once delivery ends
	// here; the durable log is the recovery source.
	if err := p.forwarder.ForwardBalanceUpdate(ctx, event); err != nil {
		p.logger.Printf("[processor] forward balance event %s failed: %v", event.ID, err)
		observability.RecordEventError("balance", "forward")
	} else {
		observability.RecordEventForwarded("balance")
	}

	if p.mirror != nil {
		if err := p.mirror.InsertBalanceEvent(ctx, event); err != nil {
			p.logger.Printf("[processor] mirror balance event %s failed: %v", event.ID, err)
			observability.RecordEventError("balance", "mirror")
		}
	}
}

// TransactionProcessor drains the transaction queue: persist, forward,
// mirror. Same failure policy as the balance processor.
type TransactionProcessor struct {
	queue     *Queue[*domain.TransactionEvent]
	store     storage.TransactionEventStore
	forwarder TransactionForwarder
	mirror    EventMirror
	logger    *log.Logger
}

// NewTransactionProcessor creates a transaction processor. mirror may be nil.
func NewTransactionProcessor(queue *Queue[*domain.TransactionEvent], store storage.TransactionEventStore, forwarder TransactionForwarder, mirror EventMirror, logger *log.Logger) *TransactionProcessor {
	if logger == nil {
		logger = log.Default()
	}
	return &TransactionProcessor{
		queue:     queue,
		store:     store,
		forwarder: forwarder,
		mirror:    mirror,
		logger:    logger,
	}
}

// Run processes events until the queue is closed and drained or the context
// is cancelled.
func (p *TransactionProcessor) Run(ctx context.Context) {
	for {
		event, ok := p.queue.Pop(ctx)
		if !ok {
			p.logger.Println("[processor] transaction queue drained, stopping")
			return
		}
		observability.UpdateQueueDepth("transaction", p.queue.Len())
		p.process(ctx, event)
	}
}

func (p *TransactionProcessor) process(ctx context.Context, event *domain.TransactionEvent) {
	if err := p.store.Insert(ctx, event); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			p.logger.Printf("[processor] persist transaction event %s failed: %v", event.ID, err)
			observability.RecordEventError("transaction", "store")
			return
		}
	} else {
		observability.RecordEventStored("transaction")
	}

	if err := p.forwarder.ForwardTransactionEvent(ctx, event); err != nil {
		p.logger.Printf("[processor] forward transaction event %s failed: %v", event.ID, err)
		observability.RecordEventError("transaction", "forward")
	} else {
		observability.RecordEventForwarded("transaction")
	}

	if p.mirror != nil {
		if err := p.mirror.InsertTransactionEvent(ctx, event); err != nil {
			p.logger.Printf("[processor] mirror transaction event %s failed: %v", event.ID, err)
			observability.RecordEventError("transaction", "mirror")
		}
	}
}
