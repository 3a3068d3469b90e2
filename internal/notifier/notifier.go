// Package notifier forwards decoded events to the downstream ledger service
// over HTTP.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"wallet-indexer/internal/domain"
	"wallet-indexer/internal/ingestion"
	"wallet-indexer/internal/observability"
)

const (
	balanceUpdatePath    = "/balance/update"
	transactionEventPath = "/transactions/event"
)

// Client posts events to the ledger service. Calls are bounded by the
// client timeout; a non-2xx response is an error to the caller. The client
// does not retry, by contract the durable event log is the recovery source.
type Client struct {
	baseURL string
	http    *http.Client
}

// Compile-time interface checks.
var (
	_ ingestion.BalanceForwarder     = (*Client)(nil)
	_ ingestion.TransactionForwarder = (*Client)(nil)
)

// NewClient creates a notifier client for the ledger base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// ForwardBalanceUpdate posts one balance event.
func (c *Client) ForwardBalanceUpdate(ctx context.Context, e *domain.BalanceEvent) error {
	return c.post(ctx, balanceUpdatePath, e)
}

// ForwardTransactionEvent posts one transaction event.
func (c *Client) ForwardTransactionEvent(ctx context.Context, e *domain.TransactionEvent) error {
	return c.post(ctx, transactionEventPath, e)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	observability.RecordForwardLatency(path, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for the log line, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode, string(snippet))
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}
