package ingestion

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/observability"
	"wallet-indexer/internal/solana"
)

// WatchSource is the registry surface the subscriber needs: snapshots to
// build filters, refresh to keep the cache current, lookups for decoding.
type WatchSource interface {
	Snapshot() domain.WatchSnapshot
	Refresh(ctx context.Context) error
	Lookup(publicKey string) (domain.WatchedKey, bool)
	Len() int
}

// SubscriberOptions contains configuration for creating a Subscriber.
type SubscriberOptions struct {
	Dialer           solana.StreamDialer
	Watch            WatchSource
	BalanceQueue     *Queue[*domain.BalanceEvent]
	TransactionQueue *Queue[*domain.TransactionEvent]

	// TrackedMints lists SPL mints whose associated token accounts are
	// watched alongside each wallet's native balance.
	TrackedMints []string

	// MaxAttempts is the number of consecutive failed connection cycles
	// tolerated before Run gives up. Default: 10.
	MaxAttempts int

	// IdleWait is how long to wait before re-checking an empty watch-list.
	// Default: 30s.
	IdleWait time.Duration

	// RefreshEvery triggers a registry refresh after this many stream
	// messages. Default: 1000.
	RefreshEvery int

	Logger *log.Logger
}

// Subscriber owns the long-lived stream connection: it builds the
// subscription filter from a watch-list snapshot, decodes inbound updates,
// fans events out onto the queues, and drives the reconnect/backoff cycle.
// The active filter is fixed for the lifetime of one connection; watch-list
// changes become visible on the next reconnect.
type Subscriber struct {
	dialer           solana.StreamDialer
	watch            WatchSource
	balanceQueue     *Queue[*domain.BalanceEvent]
	transactionQueue *Queue[*domain.TransactionEvent]
	trackedMints     []string
	maxAttempts      int
	idleWait         time.Duration
	refreshEvery     int
	logger           *log.Logger
	newBackoff       func() backoff.BackOff

	mu    sync.Mutex
	stats domain.StreamStats
}

// NewSubscriber creates a subscriber.
func NewSubscriber(opts SubscriberOptions) *Subscriber {
	maxAttempts := opts.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 10
	}
	idleWait := opts.IdleWait
	if idleWait == 0 {
		idleWait = 30 * time.Second
	}
	refreshEvery := opts.RefreshEvery
	if refreshEvery == 0 {
		refreshEvery = 1000
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Subscriber{
		dialer:           opts.Dialer,
		watch:            opts.Watch,
		balanceQueue:     opts.BalanceQueue,
		transactionQueue: opts.TransactionQueue,
		trackedMints:     opts.TrackedMints,
		maxAttempts:      maxAttempts,
		idleWait:         idleWait,
		refreshEvery:     refreshEvery,
		logger:           logger,
		newBackoff:       func() backoff.BackOff { return newReconnectBackoff() },
		stats:            domain.StreamStats{State: domain.StreamIdle},
	}
}

// newReconnectBackoff returns the deterministic reconnect schedule:
// 2s, 4s, 8s, ..., capped at 64s, no jitter.
func newReconnectBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = 64 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run drives the connection state machine until the context is cancelled or
// the consecutive failure budget is exhausted. Exhaustion is the only fatal
// exit; every other stream end feeds back into reconnect.
func (s *Subscriber) Run(ctx context.Context) error {
	bo := s.newBackoff()
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			s.setState(domain.StreamStopped, "")
			return err
		}

		snapshot := s.watch.Snapshot()
		if snapshot.Empty() {
			s.setState(domain.StreamIdle, "")
			s.logger.Printf("[subscriber] watch-list empty, waiting %v", s.idleWait)
			if !sleepCtx(ctx, s.idleWait) {
				s.setState(domain.StreamStopped, "")
				return ctx.Err()
			}
			continue
		}

		s.setWatchedKeys(len(snapshot.Keys))
		s.setState(domain.StreamConnecting, "")
		s.logger.Printf("[subscriber] connecting with %d watched keys (attempt %d)", len(snapshot.Keys), attempts+1)

		processed, err := s.runSession(ctx, snapshot)
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.setState(domain.StreamStopped, "")
			return ctxErr
		}

		if err != nil {
			s.logger.Printf("[subscriber] session ended: %v", err)
			s.setState(domain.StreamBackoff, err.Error())
		} else {
			s.logger.Printf("[subscriber] session closed cleanly after %d messages", processed)
			s.setState(domain.StreamBackoff, "")
		}

		// Only a session that streamed at least one message and ended
		// without a transport error counts as successful; the failure budget
		// starts over. A flaky endpoint that drops the connection after
		// every first message must still exhaust the budget.
		if processed > 0 && err == nil {
			attempts = 0
			bo.Reset()
		}

		attempts++
		s.setAttempts(attempts)
		observability.RecordReconnectAttempt()
		if attempts >= s.maxAttempts {
			s.setState(domain.StreamStopped, "retry budget exhausted")
			return fmt.Errorf("giving up after %d consecutive failed connection cycles", attempts)
		}

		wait := bo.NextBackOff()
		s.logger.Printf("[subscriber] reconnecting in %v", wait)
		if !sleepCtx(ctx, wait) {
			s.setState(domain.StreamStopped, "")
			return ctx.Err()
		}
	}
}

// runSession dials once and streams until the session ends. Returns the
// number of messages processed and the transport error, nil for clean close.
func (s *Subscriber) runSession(ctx context.Context, snapshot domain.WatchSnapshot) (int64, error) {
	resolver, filterKeys := s.buildResolver(snapshot)

	session, err := s.dialer.Dial(ctx, solana.BuildSubscribeRequest(filterKeys))
	if err != nil {
		return 0, fmt.Errorf("dial stream: %w", err)
	}
	defer session.Close()

	observability.SetStreamConnected(true)
	defer observability.SetStreamConnected(false)
	s.setState(domain.StreamStreaming, "")

	decoder := NewDecoder(resolver)
	balances := newBalanceTracker()
	var processed int64

	for {
		select {
		case <-ctx.Done():
			return processed, nil
		case update, ok := <-session.Updates():
			if !ok {
				return processed, session.Err()
			}

			processed++
			s.countMessage()
			observability.RecordMessageReceived()

			s.dispatch(decoder, balances, update)

			// Keep the cache current even though the active filter is
			// frozen until the next reconnect.
			if s.refreshEvery > 0 && processed%int64(s.refreshEvery) == 0 {
				if err := s.watch.Refresh(ctx); err != nil {
					s.logger.Printf("[subscriber] registry refresh failed: %v", err)
				} else {
					observability.RecordRegistryRefresh(s.watch.Len())
				}
			}
		}
	}
}

// dispatch routes one update to the decoder and the matching queue.
func (s *Subscriber) dispatch(decoder *Decoder, balances *balanceTracker, update solana.Update) {
	switch {
	case update.Account != nil:
		event, err := decoder.DecodeAccount(update.Account, balances)
		if err != nil {
			observability.RecordMalformedMessage()
			s.logger.Printf("[subscriber] skipping malformed account update: %v", err)
			return
		}
		if event == nil {
			return
		}
		balances.Set(event.PublicKey, event.MintAddress, event.NewBalance)
		if s.balanceQueue.Push(event) {
			s.countBalanceEvent()
			observability.RecordBalanceDecoded()
			observability.UpdateQueueDepth("balance", s.balanceQueue.Len())
		}
		observability.UpdateHighestSlot(update.Account.Slot)

	case update.Transaction != nil:
		event, err := decoder.DecodeTransaction(update.Transaction)
		if err != nil {
			observability.RecordMalformedMessage()
			s.logger.Printf("[subscriber] skipping malformed transaction update: %v", err)
			return
		}
		if event == nil {
			return
		}
		if s.transactionQueue.Push(event) {
			s.countTransactionEvent()
			observability.RecordTransactionDecoded()
			observability.UpdateQueueDepth("transaction", s.transactionQueue.Len())
		}
		observability.UpdateHighestSlot(update.Transaction.Slot)

	case update.Slot != nil:
		observability.UpdateHighestSlot(update.Slot.Slot)

	default:
		// Pings and unknown kinds carry no event.
	}
}

// buildResolver builds the per-connection resolver and the full filter key
// list: every watched wallet plus, per tracked mint, its associated token
// account mapped back to the owning wallet.
func (s *Subscriber) buildResolver(snapshot domain.WatchSnapshot) (*connectionResolver, []string) {
	resolver := &connectionResolver{
		wallets: make(map[string]domain.WatchedKey, len(snapshot.Keys)),
		atas:    make(map[string]domain.WatchedKey),
	}

	filterKeys := make([]string, 0, len(snapshot.Keys))
	for _, key := range snapshot.Keys {
		resolver.wallets[key.PublicKey] = key
		filterKeys = append(filterKeys, key.PublicKey)
	}

	for _, key := range snapshot.Keys {
		if !key.Kind.WatchesAccounts() {
			continue
		}
		for _, mint := range s.trackedMints {
			ata, err := solana.FindAssociatedTokenAddress(key.PublicKey, mint)
			if err != nil {
				s.logger.Printf("[subscriber] skipping token account for %s mint %s: %v", key.PublicKey, mint, err)
				continue
			}
			resolver.atas[ata] = key
			filterKeys = append(filterKeys, ata)
		}
	}

	return resolver, filterKeys
}

// Stats returns a point-in-time view of the subscriber, queue depths
// included.
func (s *Subscriber) Stats() domain.StreamStats {
	s.mu.Lock()
	stats := s.stats
	s.mu.Unlock()

	stats.BalanceQueueDepth = s.balanceQueue.Len()
	stats.TransactionQueueDepth = s.transactionQueue.Len()
	return stats
}

func (s *Subscriber) setState(state domain.StreamState, lastError string) {
	s.mu.Lock()
	s.stats.State = state
	if lastError != "" {
		s.stats.LastError = lastError
	}
	s.mu.Unlock()
}

func (s *Subscriber) setWatchedKeys(n int) {
	s.mu.Lock()
	s.stats.WatchedKeys = n
	s.mu.Unlock()
}

func (s *Subscriber) setAttempts(n int) {
	s.mu.Lock()
	s.stats.AttemptCount = n
	s.mu.Unlock()
}

func (s *Subscriber) countMessage() {
	s.mu.Lock()
	s.stats.MessagesReceived++
	s.mu.Unlock()
}

func (s *Subscriber) countBalanceEvent() {
	s.mu.Lock()
	s.stats.BalanceEvents++
	s.mu.Unlock()
}

func (s *Subscriber) countTransactionEvent() {
	s.mu.Lock()
	s.stats.TransactionEvents++
	s.mu.Unlock()
}

// connectionResolver is the filter's view of the watch-list, frozen at
// connection time. Token accounts resolve to their owning wallet.
type connectionResolver struct {
	wallets map[string]domain.WatchedKey
	atas    map[string]domain.WatchedKey
}

var _ Resolver = (*connectionResolver)(nil)

func (r *connectionResolver) Lookup(publicKey string) (domain.WatchedKey, bool) {
	if key, ok := r.wallets[publicKey]; ok {
		return key, true
	}
	key, ok := r.atas[publicKey]
	return key, ok
}

// balanceTracker remembers the last balance seen per (wallet, mint) during
// one connection. The first sighting uses a zero baseline; the durable store
// remains the authoritative ledger.
type balanceTracker struct {
	seen map[balanceKey]int64
}

type balanceKey struct {
	publicKey string
	mint      string
}

func newBalanceTracker() *balanceTracker {
	return &balanceTracker{seen: make(map[balanceKey]int64)}
}

var _ BalanceSource = (*balanceTracker)(nil)

func (t *balanceTracker) LastBalance(publicKey, mint string) (int64, bool) {
	balance, ok := t.seen[balanceKey{publicKey: publicKey, mint: mint}]
	return balance, ok
}

func (t *balanceTracker) Set(publicKey, mint string, balance int64) {
	t.seen[balanceKey{publicKey: publicKey, mint: mint}] = balance
}

// sleepCtx waits for d unless the context ends first. Reports whether the
// full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
