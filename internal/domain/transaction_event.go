package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind classifies a transaction from the watched key's viewpoint.
type TransactionKind string

const (
	TransactionSend    TransactionKind = "send"
	TransactionReceive TransactionKind = "receive"
	TransactionSwap    TransactionKind = "swap"
	TransactionUnknown TransactionKind = "unknown"
)

// TransactionStatus is the on-chain outcome of a transaction.
type TransactionStatus string

const (
	StatusSuccess TransactionStatus = "success"
	StatusFailed  TransactionStatus = "failed"
	StatusPending TransactionStatus = "pending"
)

// TransactionEvent records one observed transaction involving a watched key.
// Metadata extraction is best-effort: fields that cannot be derived from the
// notification are left nil rather than defaulted.
type TransactionEvent struct {
	ID        string            `json:"id"`
	PublicKey string            `json:"public_key"`
	Signature string            `json:"signature"`
	Slot      int64             `json:"slot"`
	BlockTime *time.Time        `json:"block_time,omitempty"`
	Kind      TransactionKind   `json:"kind"`
	Amount    *int64            `json:"amount,omitempty"`
	Mint      *string           `json:"mint,omitempty"`
	From      *string           `json:"from,omitempty"`
	To        *string           `json:"to,omitempty"`
	Fee       *int64            `json:"fee,omitempty"`
	Status    TransactionStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewTransactionEvent creates a transaction event with a fresh ID.
func NewTransactionEvent(publicKey, signature string, slot int64) *TransactionEvent {
	return &TransactionEvent{
		ID:        uuid.NewString(),
		PublicKey: publicKey,
		Signature: signature,
		Slot:      slot,
		Kind:      TransactionUnknown,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
