package solana

import (
	"context"
	"fmt"
)

// CommitmentConfirmed is the commitment level used for all subscriptions.
const CommitmentConfirmed = "confirmed"

// SubscribeRequest is the filter set sent once after connecting. It mirrors
// the Geyser subscribe shape: one named account filter per watched key plus
// a single transaction filter covering all of them.
type SubscribeRequest struct {
	Accounts     map[string]AccountFilter     `json:"accounts,omitempty"`
	Transactions map[string]TransactionFilter `json:"transactions,omitempty"`
	Commitment   string                       `json:"commitment"`
}

// AccountFilter matches account updates by exact pubkey.
type AccountFilter struct {
	Account []string `json:"account"`
}

// TransactionFilter matches transactions mentioning any included account.
type TransactionFilter struct {
	Vote           bool     `json:"vote"`
	Failed         bool     `json:"failed"`
	AccountInclude []string `json:"account_include"`
}

// BuildSubscribeRequest builds the standard filter set for a list of watched
// keys: account_<i> entries with exact matches, one transaction filter
// excluding votes and failed transactions.
func BuildSubscribeRequest(keys []string) SubscribeRequest {
	accounts := make(map[string]AccountFilter, len(keys))
	for i, key := range keys {
		accounts[fmt.Sprintf("account_%d", i)] = AccountFilter{Account: []string{key}}
	}
	return SubscribeRequest{
		Accounts: accounts,
		Transactions: map[string]TransactionFilter{
			"watched": {
				Vote:           false,
				Failed:         false,
				AccountInclude: keys,
			},
		},
		Commitment: CommitmentConfirmed,
	}
}

// Update is one inbound stream message. Exactly one field is set; messages
// with no recognized field are skipped by consumers.
type Update struct {
	Account     *AccountUpdate     `json:"account,omitempty"`
	Transaction *TransactionUpdate `json:"transaction,omitempty"`
	Slot        *SlotUpdate        `json:"slot,omitempty"`
	Ping        *PingUpdate        `json:"ping,omitempty"`
}

// AccountUpdate carries one account state change.
type AccountUpdate struct {
	Account AccountInfo `json:"account"`
	Slot    int64       `json:"slot"`
}

// AccountInfo is the account state at the update's slot. Data is the raw
// account data (base64 on the wire).
type AccountInfo struct {
	Pubkey       string  `json:"pubkey"`
	Lamports     int64   `json:"lamports"`
	Owner        string  `json:"owner"`
	Data         []byte  `json:"data,omitempty"`
	Executable   bool    `json:"executable"`
	RentEpoch    uint64  `json:"rent_epoch"`
	WriteVersion uint64  `json:"write_version"`
	TxnSignature *string `json:"txn_signature,omitempty"`
}

// TransactionUpdate carries one confirmed transaction.
type TransactionUpdate struct {
	Transaction TransactionInfo `json:"transaction"`
	Slot        int64           `json:"slot"`
	BlockTime   *int64          `json:"block_time,omitempty"`
}

// TransactionInfo is the transaction envelope plus execution metadata.
type TransactionInfo struct {
	Signature   string           `json:"signature"`
	IsVote      bool             `json:"is_vote"`
	AccountKeys []string         `json:"account_keys"`
	Meta        *TransactionMeta `json:"meta,omitempty"`
}

// TransactionMeta is the post-execution metadata. Balance slices are indexed
// by position in AccountKeys.
type TransactionMeta struct {
	Err          *string `json:"err,omitempty"`
	Fee          int64   `json:"fee"`
	PreBalances  []int64 `json:"pre_balances,omitempty"`
	PostBalances []int64 `json:"post_balances,omitempty"`
}

// SlotUpdate carries slot progression metadata. Not decoded into events.
type SlotUpdate struct {
	Slot   int64  `json:"slot"`
	Status string `json:"status,omitempty"`
}

// PingUpdate is a keepalive. Not decoded into events.
type PingUpdate struct{}

// StreamDialer opens one streaming session per call. Implementations do not
// reconnect; the caller owns retry policy.
type StreamDialer interface {
	Dial(ctx context.Context, req SubscribeRequest) (StreamSession, error)
}

// StreamSession is one live subscription. Updates is closed when the session
// ends for any reason; Err then reports the terminal error, nil for a clean
// close.
type StreamSession interface {
	Updates() <-chan Update
	Err() error
	Close() error
}
