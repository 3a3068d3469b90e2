package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/storage"
)

// TransactionEventStore implements storage.TransactionEventStore using PostgreSQL.
type TransactionEventStore struct {
	pool *Pool
}

// NewTransactionEventStore creates a new TransactionEventStore.
func NewTransactionEventStore(pool *Pool) *TransactionEventStore {
	return &TransactionEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransactionEventStore = (*TransactionEventStore)(nil)

const transactionEventColumns = `id, public_key, signature, slot, block_time, kind,
	amount, mint, from_address, to_address, fee, status, created_at`

// Insert appends a transaction event. Returns ErrDuplicateKey if the id exists.
func (s *TransactionEventStore) Insert(ctx context.Context, e *domain.TransactionEvent) error {
	if e == nil || e.ID == "" || e.Signature == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO transaction_events (` + transactionEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.PublicKey,
		e.Signature,
		e.Slot,
		e.BlockTime,
		string(e.Kind),
		e.Amount,
		e.Mint,
		e.From,
		e.To,
		e.Fee,
		string(e.Status),
		e.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		observability.RecordDBQueryError("postgres", "insert_transaction_event")
		return fmt.Errorf("insert transaction event: %w", err)
	}
	return nil
}

// GetByPublicKey retrieves the most recent events for a key, newest first.
func (s *TransactionEventStore) GetByPublicKey(ctx context.Context, publicKey string, limit int) ([]*domain.TransactionEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + transactionEventColumns + `
		FROM transaction_events
		WHERE public_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, publicKey, limit)
	if err != nil {
		observability.RecordDBQueryError("postgres", "get_transaction_events_by_public_key")
		return nil, fmt.Errorf("get transaction events by public key: %w", err)
	}
	defer rows.Close()

	return scanTransactionEvents(rows)
}

func scanTransactionEvents(rows pgx.Rows) ([]*domain.TransactionEvent, error) {
	var events []*domain.TransactionEvent

	for rows.Next() {
		var e domain.TransactionEvent
		var kindStr, statusStr string

		err := rows.Scan(
			&e.ID,
			&e.PublicKey,
			&e.Signature,
			&e.Slot,
			&e.BlockTime,
			&kindStr,
			&e.Amount,
			&e.Mint,
			&e.From,
			&e.To,
			&e.Fee,
			&statusStr,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transaction event row: %w", err)
		}

		e.Kind = domain.TransactionKind(kindStr)
		e.Status = domain.TransactionStatus(statusStr)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction event rows: %w", err)
	}

	return events, nil
}
