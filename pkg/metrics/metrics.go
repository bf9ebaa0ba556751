package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ExtractionMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_messages_total",
			Help: "Total number of messages processed by the extraction service (count)",
		},
		[]string{"status"}, // saved, duplicate, failed
	)

	ExtractionProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_processing_duration_ms",
			Help:    "Per-message processing duration in the extraction service in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"status"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_checks_total",
			Help: "Total number of deduplication checks (count)",
		},
		[]string{"status"}, // unique, duplicate, error
	)

	DedupCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_check_duration_ms",
			Help:    "Deduplication check duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	DedupCacheFalsePositivesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dedup_cache_false_positives_total",
			Help: "Cache entries present without a matching store row (count)",
		},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_cache_size",
			Help: "Approximate size of the deduplication cache (count)",
		},
	)

	ClassificationMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classification_messages_total",
			Help: "Total number of messages classified, by primary category (count)",
		},
		[]string{"category", "status"}, // status: scored, cached, fallback, error
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classification_duration_ms",
			Help:    "Classification duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	ClassificationActivePatterns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "classification_active_patterns",
			Help: "Number of active classification patterns across all categories (count)",
		},
	)

	RoutedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routed_events_total",
			Help: "Total number of classified events routed to a category channel (count)",
		},
		[]string{"topic", "status"},
	)

	OutboxPendingMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_messages",
			Help: "Stored messages not yet announced on the bus (count)",
		},
	)

	OutboxRepublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_republished_total",
			Help: "Messages re-published by the outbox sweep (count)",
		},
		[]string{"status"},
	)

	AuditEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Audit records written, by action (count)",
		},
		[]string{"action", "result"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Times a configured fallback decision was applied (count)",
		},
		[]string{"component", "fallback", "reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Message processing retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Messages routed to a dead-letter topic (count)",
		},
		[]string{"service", "source_topic", "reason"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Requests evaluated by the rate limiter (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Failed requests through a circuit breaker (count)",
		},
		[]string{"name"},
	)
)

func RegisterExtractionMetrics() {
	prometheus.MustRegister(
		ExtractionMessagesTotal,
		ExtractionProcessingDuration,
		DedupChecksTotal,
		DedupCheckDuration,
		DedupCacheFalsePositivesTotal,
		DedupCacheSize,
		OutboxPendingMessages,
		OutboxRepublishedTotal,
		AuditEventsTotal,
		RateLimitRequestsTotal,
	)
}

func RegisterClassificationMetrics() {
	prometheus.MustRegister(
		ClassificationMessagesTotal,
		ClassificationDuration,
		ClassificationActivePatterns,
		RoutedEventsTotal,
		AuditEventsTotal,
	)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(
		RetryAttemptsTotal,
		DLQMessagesTotal,
		FallbackUsageTotal,
	)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(
		CircuitBreakerState,
		CircuitBreakerRequests,
		CircuitBreakerFailures,
	)
}

func ObserveDedupDuration(d time.Duration, status string) {
	DedupCheckDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveExtractionDuration(d time.Duration, status string) {
	ExtractionProcessingDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveClassificationDuration(d time.Duration, status string) {
	ClassificationDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func SetClassificationActivePatterns(n int) {
	ClassificationActivePatterns.Set(float64(n))
}

func SetOutboxPending(n int) {
	OutboxPendingMessages.Set(float64(n))
}
