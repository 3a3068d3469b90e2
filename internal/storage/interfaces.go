package storage

import (
	"context"

	"wallet-indexer/internal/domain"
)

// SubscribedKeyStore provides access to subscribed_keys storage. Rows are
// never hard-deleted; removal flips is_active so history is preserved.
type SubscribedKeyStore interface {
	// Upsert inserts a subscription or reactivates the existing row for
	// (owner_id, public_key), keeping the original id. Returns the stored row.
	Upsert(ctx context.Context, key *domain.SubscribedKey) (*domain.SubscribedKey, error)

	// Deactivate soft-deletes the active subscription for (owner_id,
	// public_key). Reports whether a row was deactivated.
	Deactivate(ctx context.Context, ownerID, publicKey string) (bool, error)

	// GetActive retrieves all active subscriptions ordered by public key.
	GetActive(ctx context.Context) ([]*domain.SubscribedKey, error)

	// GetByOwner retrieves all subscriptions for an owner, active and not.
	GetByOwner(ctx context.Context, ownerID string) ([]*domain.SubscribedKey, error)

	// GetByPublicKey retrieves the active subscription for a public key.
	// Returns ErrNotFound if no active row exists.
	GetByPublicKey(ctx context.Context, publicKey string) (*domain.SubscribedKey, error)

	// Stats returns aggregate counts over the whole table.
	Stats(ctx context.Context) (*domain.RegistryStats, error)
}

// BalanceEventStore provides append access to the balance event log.
type BalanceEventStore interface {
	// Insert appends a balance event. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, e *domain.BalanceEvent) error

	// GetByPublicKey retrieves the most recent events for a key, newest
	// first, at most limit rows.
	GetByPublicKey(ctx context.Context, publicKey string, limit int) ([]*domain.BalanceEvent, error)
}

// TransactionEventStore provides append access to the transaction event log.
type TransactionEventStore interface {
	// Insert appends a transaction event. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, e *domain.TransactionEvent) error

	// GetByPublicKey retrieves the most recent events for a key, newest
	// first, at most limit rows.
	GetByPublicKey(ctx context.Context, publicKey string, limit int) ([]*domain.TransactionEvent, error)
}

// Pinger reports backing-store liveness for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}
