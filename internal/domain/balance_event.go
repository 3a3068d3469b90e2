package domain

import (
	"time"

	"github.com/google/uuid"
)

// NativeMint is the wrapped SOL mint address used for native lamport balances.
const NativeMint = "So11111111111111111111111111111111111111112"

// ChangeKind classifies a balance movement.
type ChangeKind string

const (
	ChangeIncrease ChangeKind = "increase"
	ChangeDecrease ChangeKind = "decrease"
	ChangeSwapIn   ChangeKind = "swap_in"
	ChangeSwapOut  ChangeKind = "swap_out"
	ChangeTransfer ChangeKind = "transfer"
	ChangeUnknown  ChangeKind = "unknown"
)

// BalanceEvent records one observed balance change for a watched key.
// Balances are in base units (lamports for the native mint, raw token
// amount otherwise). Immutable once created.
type BalanceEvent struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	PublicKey    string     `json:"public_key"`
	MintAddress  string     `json:"mint_address"`
	OldBalance   int64      `json:"old_balance"`
	NewBalance   int64      `json:"new_balance"`
	ChangeAmount int64      `json:"change_amount"`
	ChangeKind   ChangeKind `json:"change_kind"`
	TxSignature  *string    `json:"tx_signature,omitempty"`
	Slot         int64      `json:"slot"`
	BlockTime    *time.Time `json:"block_time,omitempty"`
	ProcessedAt  time.Time  `json:"processed_at"`
}

// NewBalanceEvent creates a balance event, deriving the change amount.
func NewBalanceEvent(ownerID, publicKey, mint string, oldBalance, newBalance int64, kind ChangeKind, txSignature *string, slot int64) *BalanceEvent {
	return &BalanceEvent{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		PublicKey:    publicKey,
		MintAddress:  mint,
		OldBalance:   oldBalance,
		NewBalance:   newBalance,
		ChangeAmount: newBalance - oldBalance,
		ChangeKind:   kind,
		TxSignature:  txSignature,
		Slot:         slot,
		ProcessedAt:  time.Now().UTC(),
	}
}
