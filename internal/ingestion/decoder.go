package ingestion

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/solana"
)

// Resolver answers whether a stream-level account key belongs to the
// watch-list and which watched wallet it maps to. For associated token
// accounts the returned entry names the owning wallet, not the token account.
type Resolver interface {
	Lookup(publicKey string) (domain.WatchedKey, bool)
}

// BalanceSource supplies the last observed balance for (wallet, mint).
// The decoder keeps no state of its own; absent entries mean a zero baseline.
type BalanceSource interface {
	LastBalance(publicKey, mint string) (int64, bool)
}

// SPL token account layout offsets. Mint occupies the first 32 bytes and the
// raw amount is a little-endian u64 at byte 64.
const (
	splMintOffset   = 0
	splAmountOffset = 64
	splMinDataLen   = 72
)

// Decoder maps raw stream updates to domain events. It performs no I/O;
// output depends only on the update, the resolver, and the balance source.
type Decoder struct {
	resolver Resolver
}

// NewDecoder creates a decoder over a resolver.
func NewDecoder(resolver Resolver) *Decoder {
	return &Decoder{resolver: resolver}
}

// DecodeAccount maps an account update to a balance event. Returns (nil, nil)
// when the account is not watched or the kind excludes account updates, and
// an error for malformed payloads. The error never tears the stream down;
// callers count and continue.
func (d *Decoder) DecodeAccount(u *solana.AccountUpdate, balances BalanceSource) (*domain.BalanceEvent, error) {
	if u == nil || u.Account.Pubkey == "" {
		return nil, fmt.Errorf("account update missing pubkey")
	}

	watched, ok := d.resolver.Lookup(u.Account.Pubkey)
	if !ok || !watched.Kind.WatchesAccounts() {
		return nil, nil
	}

	mint := domain.NativeMint
	newBalance := u.Account.Lamports
	if u.Account.Owner == solana.TokenProgramID {
		var err error
		mint, newBalance, err = decodeTokenAccountData(u.Account.Data)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", u.Account.Pubkey, err)
		}
	}

	var oldBalance int64
	if balances != nil {
		oldBalance, _ = balances.LastBalance(watched.PublicKey, mint)
	}

	return domain.NewBalanceEvent(
		watched.OwnerID,
		watched.PublicKey,
		mint,
		oldBalance,
		newBalance,
		domain.ChangeTransfer,
		u.Account.TxnSignature,
		u.Slot,
	), nil
}

// decodeTokenAccountData extracts mint and amount from raw SPL token account
// data.
func decodeTokenAccountData(data []byte) (string, int64, error) {
	if len(data) < splMinDataLen {
		return "", 0, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	mint := base58.Encode(data[splMintOffset : splMintOffset+32])
	amount := binary.LittleEndian.Uint64(data[splAmountOffset : splAmountOffset+8])
	return mint, int64(amount), nil
}

// DecodeTransaction maps a transaction update to a transaction event for the
// first watched key in its account list. Returns (nil, nil) when no watched
// key is involved, and an error for malformed payloads. Metadata extraction
// is best-effort: underivable fields stay nil.
func (d *Decoder) DecodeTransaction(u *solana.TransactionUpdate) (*domain.TransactionEvent, error) {
	if u == nil || u.Transaction.Signature == "" {
		return nil, fmt.Errorf("transaction update missing signature")
	}

	watchedIndex := -1
	var watched domain.WatchedKey
	for i, key := range u.Transaction.AccountKeys {
		entry, ok := d.resolver.Lookup(key)
		if !ok || !entry.Kind.WatchesTransactions() {
			continue
		}
		watchedIndex = i
		watched = entry
		break
	}
	if watchedIndex < 0 {
		return nil, nil
	}

	event := domain.NewTransactionEvent(watched.PublicKey, u.Transaction.Signature, u.Slot)
	if u.BlockTime != nil {
		blockTime := unixTime(*u.BlockTime)
		event.BlockTime = &blockTime
	}

	meta := u.Transaction.Meta
	if meta == nil {
		return event, nil
	}

	if meta.Err != nil {
		event.Status = domain.StatusFailed
	} else {
		event.Status = domain.StatusSuccess
	}
	fee := meta.Fee
	event.Fee = &fee

	// Amount and direction from the lamport delta at the watched account
	// index. Pre/post balances are positional with the account list.
	if watchedIndex < len(meta.PreBalances) && watchedIndex < len(meta.PostBalances) {
		delta := meta.PostBalances[watchedIndex] - meta.PreBalances[watchedIndex]
		amount := delta
		event.Amount = &amount
		mint := domain.NativeMint
		event.Mint = &mint

		switch {
		case delta < 0:
			event.Kind = domain.TransactionSend
			from := watched.PublicKey
			event.From = &from
			if to := counterparty(u.Transaction.AccountKeys, meta, watchedIndex, true); to != "" {
				event.To = &to
			}
		case delta > 0:
			event.Kind = domain.TransactionReceive
			to := watched.PublicKey
			event.To = &to
			if from := counterparty(u.Transaction.AccountKeys, meta, watchedIndex, false); from != "" {
				event.From = &from
			}
		}
	}

	return event, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// counterparty finds the account whose balance moved opposite to the watched
// one: the largest gainer for a send, the largest spender for a receive.
func counterparty(keys []string, meta *solana.TransactionMeta, watchedIndex int, gained bool) string {
	best := ""
	var bestDelta int64
	for i, key := range keys {
		if i == watchedIndex || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			continue
		}
		delta := meta.PostBalances[i] - meta.PreBalances[i]
		if gained && delta > bestDelta {
			best, bestDelta = key, delta
		}
		if !gained && delta < bestDelta {
			best, bestDelta = key, delta
		}
	}
	return best
}
