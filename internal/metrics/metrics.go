// Tandem - Event Co-occurrence Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tandem

// Package metrics registers Tandem's Prometheus instruments. All collectors are
// created with promauto against the default registry and exposed by the HTTP
// server at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	ActionsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_actions_collected_total",
			Help: "User actions accepted by the collector",
		},
		[]string{"action_type", "transport"},
	)

	ActionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_actions_rejected_total",
			Help: "User actions rejected by ingest validation",
		},
		[]string{"transport"},
	)

	// Stream plumbing
	StreamMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_stream_messages_published_total",
			Help: "Messages published to JetStream",
		},
		[]string{"subject"},
	)

	StreamPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_stream_publish_errors_total",
			Help: "Failed JetStream publishes",
		},
		[]string{"subject"},
	)

	StreamRecordsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_stream_records_consumed_total",
			Help: "Records received by a consumer loop",
		},
		[]string{"consumer"},
	)

	StreamRecordsMalformed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_stream_records_malformed_total",
			Help: "Records skipped because they could not be decoded or validated",
		},
		[]string{"consumer"},
	)

	StreamFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_stream_fetch_errors_total",
			Help: "Transient fetch or acknowledgement failures",
		},
		[]string{"consumer"},
	)

	StreamBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_stream_batch_duration_seconds",
			Help:    "Time to process and commit one poll batch",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"consumer", "outcome"},
	)

	StreamBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_stream_batch_size",
			Help:    "Records per poll batch",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		},
		[]string{"consumer"},
	)

	// Aggregator
	SimilarityDeltasEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tandem_similarity_deltas_emitted_total",
			Help: "Similarity deltas produced by the aggregator",
		},
	)

	UnknownActionTypes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tandem_unknown_action_types_total",
			Help: "Actions processed with an unknown type (weight 0)",
		},
	)

	AggregatorEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_aggregator_events",
			Help: "Events with at least one recorded weight",
		},
	)

	AggregatorPairs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_aggregator_pairs",
			Help: "Event pairs with a co-occurrence sum",
		},
	)

	// Store
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB statements",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_duckdb_query_errors_total",
			Help: "Failed DuckDB statements",
		},
		[]string{"operation"},
	)

	RowsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_rows_persisted_total",
			Help: "Rows written by the store ingest side",
		},
		[]string{"table"},
	)

	// Query surface
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_rpc_requests_total",
			Help: "gRPC calls by method and status code",
		},
		[]string{"method", "code"},
	)

	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_rpc_duration_seconds",
			Help:    "gRPC call duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method"},
	)

	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_recommendations_served_total",
			Help: "Result items returned by ranking queries",
		},
		[]string{"query"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	// Resilience
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tandem_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	WALPendingEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tandem_wal_pending_entries",
			Help: "Collected actions written to the WAL but not yet published",
		},
	)

	WALOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_wal_operations_total",
			Help: "WAL operations by kind",
		},
		[]string{"operation"},
	)
)

// RecordDBQuery observes a DuckDB statement.
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordBatch observes one consumer poll cycle.
func RecordBatch(consumer string, size int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StreamBatchSize.WithLabelValues(consumer).Observe(float64(size))
	StreamBatchDuration.WithLabelValues(consumer, outcome).Observe(duration.Seconds())
}

// RecordPublish counts a publish attempt on subject.
func RecordPublish(subject string, err error) {
	if err != nil {
		StreamPublishErrors.WithLabelValues(subject).Inc()
		return
	}
	StreamMessagesPublished.WithLabelValues(subject).Inc()
}

// RecordRPC observes one gRPC call.
func RecordRPC(method, code string, duration time.Duration) {
	RPCRequests.WithLabelValues(method, code).Inc()
	RPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCircuitBreakerTransition updates breaker gauges. State values follow
// gobreaker's ordering: closed, half-open, open.
func RecordCircuitBreakerTransition(name, from, to string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
