package clickhouse

import (
	"context"
	"fmt"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
)

// EventHistoryStore mirrors persisted events into ClickHouse for analytics.
// MergeTree does not enforce uniqueness, so the caller must insert each
// event at most once per process; duplicates across restarts are tolerated
// and deduplicated at query time.
type EventHistoryStore struct {
	conn *Conn
}

// NewEventHistoryStore creates a new EventHistoryStore.
func NewEventHistoryStore(conn *Conn) *EventHistoryStore {
	return &EventHistoryStore{conn: conn}
}

// InsertBalanceEvent mirrors one balance event.
func (s *EventHistoryStore) InsertBalanceEvent(ctx context.Context, e *domain.BalanceEvent) error {
	query := `
		INSERT INTO balance_event_history (
			id, owner_id, public_key, mint_address, old_balance, new_balance,
			change_amount, change_kind, tx_signature, slot, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var signature string
	if e.TxSignature != nil {
		signature = *e.TxSignature
	}

	err := s.conn.Exec(ctx, query,
		e.ID,
		e.OwnerID,
		e.PublicKey,
		e.MintAddress,
		e.OldBalance,
		e.NewBalance,
		e.ChangeAmount,
		string(e.ChangeKind),
		signature,
		e.Slot,
		e.ProcessedAt,
	)
	if err != nil {
		observability.RecordDBQueryError("clickhouse", "insert_balance_event_history")
		return fmt.Errorf("insert balance event history: %w", err)
	}
	return nil
}

// InsertTransactionEvent mirrors one transaction event.
func (s *EventHistoryStore) InsertTransactionEvent(ctx context.Context, e *domain.TransactionEvent) error {
	query := `
		INSERT INTO transaction_event_history (
			id, public_key, signature, slot, kind, amount, mint, fee, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var amount, fee int64
	if e.Amount != nil {
		amount = *e.Amount
	}
	if e.Fee != nil {
		fee = *e.Fee
	}
	var mint string
	if e.Mint != nil {
		mint = *e.Mint
	}

	err := s.conn.Exec(ctx, query,
		e.ID,
		e.PublicKey,
		e.Signature,
		e.Slot,
		string(e.Kind),
		amount,
		mint,
		fee,
		string(e.Status),
		e.CreatedAt,
	)
	if err != nil {
		observability.RecordDBQueryError("clickhouse", "insert_transaction_event_history")
		return fmt.Errorf("insert transaction event history: %w", err)
	}
	return nil
}
