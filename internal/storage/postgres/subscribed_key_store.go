package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/storage"
)

// SubscribedKeyStore implements storage.SubscribedKeyStore using PostgreSQL.
type SubscribedKeyStore struct {
	pool *Pool
}

// NewSubscribedKeyStore creates a new SubscribedKeyStore.
func NewSubscribedKeyStore(pool *Pool) *SubscribedKeyStore {
	return &SubscribedKeyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SubscribedKeyStore = (*SubscribedKeyStore)(nil)

const subscribedKeyColumns = "id, owner_id, public_key, is_active, kind, created_at, updated_at"

// Upsert inserts a subscription or reactivates the existing row for
// (owner_id, public_key), keeping the original id.
func (s *SubscribedKeyStore) Upsert(ctx context.Context, key *domain.SubscribedKey) (*domain.SubscribedKey, error) {
	if key == nil || key.OwnerID == "" || key.PublicKey == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO subscribed_keys (id, owner_id, public_key, is_active, kind, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, public_key) DO UPDATE
			SET is_active = TRUE,
			    kind = EXCLUDED.kind,
			    updated_at = EXCLUDED.updated_at
		RETURNING ` + subscribedKeyColumns

	row := s.pool.QueryRow(ctx, query,
		key.ID,
		key.OwnerID,
		key.PublicKey,
		key.IsActive,
		string(key.Kind),
		key.CreatedAt,
		key.UpdatedAt,
	)

	stored, err := scanSubscribedKey(row)
	if err != nil {
		observability.RecordDBQueryError("postgres", "upsert_subscribed_key")
		return nil, fmt.Errorf("upsert subscribed key: %w", err)
	}
	return stored, nil
}

// Deactivate soft-deletes the active subscription for (owner_id, public_key).
func (s *SubscribedKeyStore) Deactivate(ctx context.Context, ownerID, publicKey string) (bool, error) {
	query := `
		UPDATE subscribed_keys
		SET is_active = FALSE, updated_at = NOW()
		WHERE owner_id = $1 AND public_key = $2 AND is_active = TRUE
	`

	tag, err := s.pool.Exec(ctx, query, ownerID, publicKey)
	if err != nil {
		observability.RecordDBQueryError("postgres", "deactivate_subscribed_key")
		return false, fmt.Errorf("deactivate subscribed key: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetActive retrieves all active subscriptions ordered by public key.
func (s *SubscribedKeyStore) GetActive(ctx context.Context) ([]*domain.SubscribedKey, error) {
	query := `
		SELECT ` + subscribedKeyColumns + `
		FROM subscribed_keys
		WHERE is_active = TRUE
		ORDER BY public_key ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		observability.RecordDBQueryError("postgres", "get_active_subscribed_keys")
		return nil, fmt.Errorf("get active subscribed keys: %w", err)
	}
	defer rows.Close()

	return scanSubscribedKeys(rows)
}

// GetByOwner retrieves all subscriptions for an owner, active and not.
func (s *SubscribedKeyStore) GetByOwner(ctx context.Context, ownerID string) ([]*domain.SubscribedKey, error) {
	query := `
		SELECT ` + subscribedKeyColumns + `
		FROM subscribed_keys
		WHERE owner_id = $1
		ORDER BY created_at ASC, public_key ASC
	`

	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		observability.RecordDBQueryError("postgres", "get_subscribed_keys_by_owner")
		return nil, fmt.Errorf("get subscribed keys by owner: %w", err)
	}
	defer rows.Close()

	return scanSubscribedKeys(rows)
}

// GetByPublicKey retrieves the active subscription for a public key.
func (s *SubscribedKeyStore) GetByPublicKey(ctx context.Context, publicKey string) (*domain.SubscribedKey, error) {
	query := `
		SELECT ` + subscribedKeyColumns + `
		FROM subscribed_keys
		WHERE public_key = $1 AND is_active = TRUE
		ORDER BY updated_at DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, publicKey)
	key, err := scanSubscribedKey(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		observability.RecordDBQueryError("postgres", "get_subscribed_key_by_public_key")
		return nil, fmt.Errorf("get subscribed key by public key: %w", err)
	}
	return key, nil
}

// Stats returns aggregate counts over the whole table.
func (s *SubscribedKeyStore) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(DISTINCT owner_id)
		FROM subscribed_keys
	`

	var stats domain.RegistryStats
	err := s.pool.QueryRow(ctx, query).Scan(
		&stats.TotalKeys,
		&stats.ActiveKeys,
		&stats.InactiveKeys,
		&stats.UniqueOwners,
	)
	if err != nil {
		observability.RecordDBQueryError("postgres", "subscribed_key_stats")
		return nil, fmt.Errorf("subscribed key stats: %w", err)
	}
	return &stats, nil
}

// scanSubscribedKey scans a single row into a SubscribedKey.
func scanSubscribedKey(row pgx.Row) (*domain.SubscribedKey, error) {
	var key domain.SubscribedKey
	var kindStr string

	err := row.Scan(
		&key.ID,
		&key.OwnerID,
		&key.PublicKey,
		&key.IsActive,
		&kindStr,
		&key.CreatedAt,
		&key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Kind = domain.SubscriptionKind(kindStr)
	return &key, nil
}

// scanSubscribedKeys scans multiple rows into a slice of SubscribedKey.
func scanSubscribedKeys(rows pgx.Rows) ([]*domain.SubscribedKey, error) {
	var keys []*domain.SubscribedKey

	for rows.Next() {
		key, err := scanSubscribedKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscribed key row: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribed key rows: %w", err)
	}

	return keys, nil
}
