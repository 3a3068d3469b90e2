package domain

// RegistryStats is a read-only projection of the subscribed_keys table.
type RegistryStats struct {
	TotalKeys    int64 `json:"total_keys"`
	ActiveKeys   int64 `json:"active_keys"`
	InactiveKeys int64 `json:"inactive_keys"`
	UniqueOwners int64 `json:"unique_owners"`
}

// StreamState is the subscriber's connection state, for health reporting.
type StreamState string

const (
	StreamIdle       StreamState = "idle"
	StreamConnecting StreamState = "connecting"
	StreamStreaming  StreamState = "streaming"
	StreamBackoff    StreamState = "backoff"
	StreamStopped    StreamState = "stopped"
)

// StreamStats is a read-only view of the stream subscriber. Counts are
// cumulative for the process lifetime; queue depths are instantaneous.
type StreamStats struct {
	State                 StreamState `json:"state"`
	WatchedKeys           int         `json:"watched_keys"`
	AttemptCount          int         `json:"attempt_count"`
	LastError             string      `json:"last_error,omitempty"`
	MessagesReceived      int64       `json:"messages_received"`
	BalanceEvents         int64       `json:"balance_events"`
	TransactionEvents     int64       `json:"transaction_events"`
	BalanceQueueDepth     int         `json:"balance_queue_depth"`
	TransactionQueueDepth int         `json:"transaction_queue_depth"`
}
