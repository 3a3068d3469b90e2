// Package main runs the wallet indexer: a Geyser-style stream subscriber that
// filters account and transaction notifications against a user-managed
// watch-list, persists the decoded events, and forwards them to the ledger
// service. A management HTTP API exposes key registration, stats and health.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wallet-indexer/internal/api"
	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/ingestion"
	"wallet-indexer/internal/notifier"
	"wallet-indexer/internal/registry"
	"wallet-indexer/internal/solana"
	"wallet-indexer/internal/storage"
	chstore "wallet-indexer/internal/storage/clickhouse"
	"wallet-indexer/internal/storage/memory"
	"wallet-indexer/internal/storage/migrations"
	pgstore "wallet-indexer/internal/storage/postgres"
)

// stores holds the storage implementations picked at startup.
type stores struct {
	keys         storage.SubscribedKeyStore
	balances     storage.BalanceEventStore
	transactions storage.TransactionEventStore
	pinger       storage.Pinger
	mirror       ingestion.EventMirror
}

func main() {
	// Load .env if present; real env vars win.
	godotenv.Load()

	wsEndpoint := flag.String("ws-endpoint", os.Getenv("GEYSER_WS_ENDPOINT"), "Geyser WebSocket endpoint")
	wsToken := flag.String("ws-token", os.Getenv("GEYSER_X_TOKEN"), "Geyser X-Token auth header (optional)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional analytics mirror)")
	ledgerURL := flag.String("ledger-url", os.Getenv("LEDGER_URL"), "Downstream ledger service base URL")
	apiAddr := flag.String("api-addr", ":8080", "Management API listen address")
	trackedMints := flag.String("tracked-mints", os.Getenv("TRACKED_MINTS"), "Comma-separated SPL mints to watch token accounts for")
	refreshInterval := flag.Duration("refresh-interval", 30*time.Second, "Periodic watch-list refresh interval")
	forwardTimeout := flag.Duration("forward-timeout", 10*time.Second, "HTTP timeout for ledger forwarding")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	logger := log.New(os.Stdout, "[indexer] ", log.LstdFlags)

	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *ledgerURL == "" {
		logger.Fatal("--ledger-url is required")
	}
	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	reg := registry.New(st.keys, logger)
	if err := reg.Refresh(ctx); err != nil {
		logger.Fatalf("Failed to load watch-list: %v", err)
	}
	logger.Printf("Watch-list loaded: %d active keys", reg.Len())

	balanceQueue := ingestion.NewQueue[*domain.BalanceEvent]()
	transactionQueue := ingestion.NewQueue[*domain.TransactionEvent]()

	subscriber := ingestion.NewSubscriber(ingestion.SubscriberOptions{
		Dialer:           solana.NewWSDialer(*wsEndpoint, *wsToken, nil),
		Watch:            reg,
		BalanceQueue:     balanceQueue,
		TransactionQueue: transactionQueue,
		TrackedMints:     splitList(*trackedMints),
		Logger:           log.New(os.Stdout, "[stream] ", log.LstdFlags),
	})

	ledger := notifier.NewClient(*ledgerURL, *forwardTimeout)
	processorLogger := log.New(os.Stdout, "[events] ", log.LstdFlags)
	balanceProcessor := ingestion.NewBalanceProcessor(balanceQueue, st.balances, ledger, st.mirror, processorLogger)
	transactionProcessor := ingestion.NewTransactionProcessor(transactionQueue, st.transactions, ledger, st.mirror, processorLogger)

	// Processors get their own context so they can drain the queues after
	// the stream stops.
	procCtx, procCancel := context.WithCancel(context.Background())
	defer procCancel()

	var processors sync.WaitGroup
	processors.Add(2)
	go func() { defer processors.Done(); balanceProcessor.Run(procCtx) }()
	go func() { defer processors.Done(); transactionProcessor.Run(procCtx) }()

	subscriberDone := make(chan error, 1)
	go func() { subscriberDone <- subscriber.Run(ctx) }()

	go runRefreshTicker(ctx, reg, *refreshInterval, logger)

	apiServer := api.NewServer(reg, subscriber, st.pinger, logger)
	apiDone := make(chan error, 1)
	go func() { apiDone <- apiServer.ListenAndServe(ctx, *apiAddr) }()

	// Graceful shutdown on SIGINT/SIGTERM; a second signal forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Printf("Received signal %v, shutting down...", sig)
		go func() {
			sig := <-sigCh
			logger.Printf("Received second signal %v, forcing exit", sig)
			os.Exit(1)
		}()
	case err := <-subscriberDone:
		if err != nil && err != context.Canceled {
			runErr = fmt.Errorf("subscriber: %w", err)
			logger.Printf("Subscriber failed: %v", err)
		}
		subscriberDone = nil
	case err := <-apiDone:
		if err != nil {
			runErr = fmt.Errorf("api server: %w", err)
			logger.Printf("API server failed: %v", err)
		}
	}

	cancel()
	if subscriberDone != nil {
		<-subscriberDone
	}

	// Stream is down; close the queues and let the processors drain what is
	// left before the timeout cuts them off.
	balanceQueue.Close()
	transactionQueue.Close()

	drained := make(chan struct{})
	go func() {
		processors.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Println("Event queues drained")
	case <-time.After(30 * time.Second):
		logger.Println("Drain timed out, abandoning queued events")
		procCancel()
		<-drained
	}

	if runErr != nil {
		logger.Fatalf("Exited with error: %v", runErr)
	}
	logger.Println("Shutdown complete")
}

// createStores picks the storage backend and runs migrations. The returned
// cleanup closes every opened connection.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*stores, func(), error) {
	if useMemory {
		keyStore := memory.NewSubscribedKeyStore()
		return &stores{
			keys:         keyStore,
			balances:     memory.NewBalanceEventStore(),
			transactions: memory.NewTransactionEventStore(),
			pinger:       keyStore,
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	st := &stores{
		keys:         pgstore.NewSubscribedKeyStore(pool),
		balances:     pgstore.NewBalanceEventStore(pool),
		transactions: pgstore.NewTransactionEventStore(pool),
		pinger:       pool,
	}

	var chConn *chstore.Conn
	if clickhouseDSN != "" {
		chConn, err = migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
		}
		st.mirror = chstore.NewEventHistoryStore(chConn)
		logger.Println("ClickHouse event mirror enabled")
	}

	cleanup := func() {
		if chConn != nil {
			chConn.Close()
		}
		pool.Close()
	}
	return st, cleanup, nil
}

// runRefreshTicker keeps the registry cache current between reconnects.
func runRefreshTicker(ctx context.Context, reg *registry.Registry, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reg.Refresh(ctx); err != nil {
				logger.Printf("Periodic watch-list refresh failed: %v", err)
			}
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
