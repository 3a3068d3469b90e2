package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/storage"
)

// BalanceEventStore implements storage.BalanceEventStore using PostgreSQL.
type BalanceEventStore struct {
	pool *Pool
}

// NewBalanceEventStore creates a new BalanceEventStore.
func NewBalanceEventStore(pool *Pool) *BalanceEventStore {
	return &BalanceEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.BalanceEventStore = (*BalanceEventStore)(nil)

const balanceEventColumns = `id, owner_id, public_key, mint_address, old_balance, new_balance,
	change_amount, change_kind, tx_signature, slot, block_time, processed_at`

// Insert appends a balance event. Returns ErrDuplicateKey if the id exists.
func (s *BalanceEventStore) Insert(ctx context.Context, e *domain.BalanceEvent) error {
	if e == nil || e.ID == "" || e.PublicKey == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO balance_events (` + balanceEventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		e.ID,
		e.OwnerID,
		e.PublicKey,
		e.MintAddress,
		e.OldBalance,
		e.NewBalance,
		e.ChangeAmount,
		string(e.ChangeKind),
		e.TxSignature,
		e.Slot,
		e.BlockTime,
		e.ProcessedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		observability.RecordDBQueryError("postgres", "insert_balance_event")
		return fmt.Errorf("insert balance event: %w", err)
	}
	return nil
}

// GetByPublicKey retrieves the most recent events for a key, newest first.
func (s *BalanceEventStore) GetByPublicKey(ctx context.Context, publicKey string, limit int) ([]*domain.BalanceEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + balanceEventColumns + `
		FROM balance_events
		WHERE public_key = $1
		ORDER BY processed_at DESC, id DESC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, publicKey, limit)
	if err != nil {
		observability.RecordDBQueryError("postgres", "get_balance_events_by_public_key")
		return nil, fmt.Errorf("get balance events by public key: %w", err)
	}
	defer rows.Close()

	return scanBalanceEvents(rows)
}

func scanBalanceEvents(rows pgx.Rows) ([]*domain.BalanceEvent, error) {
	var events []*domain.BalanceEvent

	for rows.Next() {
		var e domain.BalanceEvent
		var kindStr string

		err := rows.Scan(
			&e.ID,
			&e.OwnerID,
			&e.PublicKey,
			&e.MintAddress,
			&e.OldBalance,
			&e.NewBalance,
			&e.ChangeAmount,
			&kindStr,
			&e.TxSignature,
			&e.Slot,
			&e.BlockTime,
			&e.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance event row: %w", err)
		}

		e.ChangeKind = domain.ChangeKind(kindStr)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance event rows: %w", err)
	}

	return events, nil
}
