// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Stream metrics
	MessagesReceived  prometheus.Counter
	ReconnectAttempts prometheus.Counter
	StreamConnected   prometheus.Gauge
	HighestSlotSeen   prometheus.Gauge

	// Decoder metrics
	BalanceEventsDecoded     prometheus.Counter
	TransactionEventsDecoded prometheus.Counter
	MalformedMessages        prometheus.Counter

	// Processor metrics
	EventsStored          *prometheus.CounterVec
	EventsForwarded       *prometheus.CounterVec
	EventProcessingErrors *prometheus.CounterVec
	QueueDepth            *prometheus.GaugeVec

	// Registry metrics
	RegistryRefreshes prometheus.Counter
	WatchedKeys       prometheus.Gauge

	// Notifier metrics
	ForwardLatency *prometheus.HistogramVec

	// Database metrics
	DBQueryErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_indexer"
	}

	return &Metrics{
		MessagesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_received_total",
			Help:      "Total number of stream messages received",
		}),
		ReconnectAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of stream reconnect attempts",
		}),
		StreamConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "Whether the stream connection is currently live (0/1)",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),

		BalanceEventsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "balance_events_total",
			Help:      "Total number of balance events decoded",
		}),
		TransactionEventsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "transaction_events_total",
			Help:      "Total number of transaction events decoded",
		}),
		MalformedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decoder",
			Name:      "malformed_messages_total",
			Help:      "Total number of messages skipped as malformed",
		}),

		EventsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_stored_total",
			Help:      "Total number of events persisted by type",
		}, []string{"event_type"}),
		EventsForwarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "events_forwarded_total",
			Help:      "Total number of events forwarded downstream by type",
		}, []string{"event_type"}),
		EventProcessingErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "event_errors_total",
			Help:      "Total number of event processing errors by type",
		}, []string{"event_type", "error_type"}),
		QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "processor",
			Name:      "queue_depth",
			Help:      "Current number of events waiting per queue",
		}, []string{"event_type"}),

		RegistryRefreshes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "refreshes_total",
			Help:      "Total number of watch-list cache refreshes",
		}),
		WatchedKeys: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "watched_keys",
			Help:      "Number of active keys in the watch-list cache",
		}),

		ForwardLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "forward_latency_seconds",
			Help:      "Downstream forward call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),

		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMessageReceived increments the stream messages counter.
func RecordMessageReceived() {
	DefaultMetrics.MessagesReceived.Inc()
}

// RecordReconnectAttempt increments the reconnect attempts counter.
func RecordReconnectAttempt() {
	DefaultMetrics.ReconnectAttempts.Inc()
}

// SetStreamConnected updates the connection gauge.
func SetStreamConnected(connected bool) {
	if connected {
		DefaultMetrics.StreamConnected.Set(1)
	} else {
		DefaultMetrics.StreamConnected.Set(0)
	}
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

// RecordBalanceDecoded increments the balance events decoded counter.
func RecordBalanceDecoded() {
	DefaultMetrics.BalanceEventsDecoded.Inc()
}

// RecordTransactionDecoded increments the transaction events decoded counter.
func RecordTransactionDecoded() {
	DefaultMetrics.TransactionEventsDecoded.Inc()
}

// RecordMalformedMessage increments the malformed messages counter.
func RecordMalformedMessage() {
	DefaultMetrics.MalformedMessages.Inc()
}

// RecordEventStored increments the stored counter for an event type.
func RecordEventStored(eventType string) {
	DefaultMetrics.EventsStored.WithLabelValues(eventType).Inc()
}

// RecordEventForwarded increments the forwarded counter for an event type.
func RecordEventForwarded(eventType string) {
	DefaultMetrics.EventsForwarded.WithLabelValues(eventType).Inc()
}

// RecordEventError records an event processing error.
func RecordEventError(eventType, errorType string) {
	DefaultMetrics.EventProcessingErrors.WithLabelValues(eventType, errorType).Inc()
}

// UpdateQueueDepth updates the depth gauge for one queue.
func UpdateQueueDepth(eventType string, depth int) {
	DefaultMetrics.QueueDepth.WithLabelValues(eventType).Set(float64(depth))
}

// RecordRegistryRefresh increments the refresh counter and updates the
// watched keys gauge.
func RecordRegistryRefresh(watchedKeys int) {
	DefaultMetrics.RegistryRefreshes.Inc()
	DefaultMetrics.WatchedKeys.Set(float64(watchedKeys))
}

// RecordForwardLatency records one downstream forward call.
func RecordForwardLatency(endpoint string, seconds float64) {
	DefaultMetrics.ForwardLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordDBQueryError records a database query error.
func RecordDBQueryError(database, operation string) {
	DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
}
