package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionKind selects which notification streams a key participates in.
type SubscriptionKind string

const (
	// SubscriptionAccount monitors account (balance) updates only.
	SubscriptionAccount SubscriptionKind = "account"

	// SubscriptionTransaction monitors transactions involving the key only.
	SubscriptionTransaction SubscriptionKind = "transaction"

	// SubscriptionBoth monitors both account updates and transactions.
	SubscriptionBoth SubscriptionKind = "both"
)

// ParseSubscriptionKind parses a subscription kind from its wire form.
func ParseSubscriptionKind(s string) (SubscriptionKind, error) {
	switch SubscriptionKind(s) {
	case SubscriptionAccount, SubscriptionTransaction, SubscriptionBoth:
		return SubscriptionKind(s), nil
	}
	return "", fmt.Errorf("unknown subscription kind %q", s)
}

// WatchesAccounts reports whether account updates should be observed.
func (k SubscriptionKind) WatchesAccounts() bool {
	return k == SubscriptionAccount || k == SubscriptionBoth
}

// WatchesTransactions reports whether transactions should be observed.
func (k SubscriptionKind) WatchesTransactions() bool {
	return k == SubscriptionTransaction || k == SubscriptionBoth
}

// SubscribedKey is a public key registered for monitoring by an owner.
// Rows are soft-deleted by flipping IsActive; (OwnerID, PublicKey) is unique.
type SubscribedKey struct {
	ID        string           `json:"id"`
	OwnerID   string           `json:"owner_id"`
	PublicKey string           `json:"public_key"`
	IsActive  bool             `json:"is_active"`
	Kind      SubscriptionKind `json:"kind"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewSubscribedKey creates an active subscription with a fresh ID.
func NewSubscribedKey(ownerID, publicKey string, kind SubscriptionKind) *SubscribedKey {
	now := time.Now().UTC()
	return &SubscribedKey{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		PublicKey: publicKey,
		IsActive:  true,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// WatchedKey is the registry cache entry for one active public key.
type WatchedKey struct {
	OwnerID   string           `json:"owner_id"`
	PublicKey string           `json:"public_key"`
	Kind      SubscriptionKind `json:"kind"`
}

// WatchSnapshot is an immutable point-in-time view of the active watch-list,
// ordered by public key. It is copied out of the registry so a subscriber can
// hold it for the lifetime of a connection without locking.
type WatchSnapshot struct {
	Keys    []WatchedKey
	TakenAt time.Time
}

// Empty reports whether the snapshot contains no keys.
func (s WatchSnapshot) Empty() bool {
	return len(s.Keys) == 0
}

// PublicKeys returns the ordered list of watched public keys.
func (s WatchSnapshot) PublicKeys() []string {
	keys := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		keys = append(keys, k.PublicKey)
	}
	return keys
}
