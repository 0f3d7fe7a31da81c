package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GraphQL client metrics
	GraphQLRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphql_request_duration_seconds",
			Help:    "Remote GraphQL request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	GraphQLRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_requests_total",
			Help: "Total remote GraphQL requests",
		},
		[]string{"operation", "status"},
	)
	GraphQLErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_errors_total",
			Help: "GraphQL errors returned in the errors[] array",
		},
		[]string{"operation"},
	)
	GraphQLRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_retries_total",
			Help: "Retried GraphQL requests",
		},
		[]string{"operation"},
	)
	SubscriptionMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_subscription_messages_total",
			Help: "Subscription frames received by type",
		},
		[]string{"operation", "type"},
	)
	SubscriptionReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphql_subscription_reconnects_total",
			Help: "Subscription reconnect attempts",
		},
		[]string{"operation"},
	)
	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "graphql_active_subscriptions",
			Help: "Open subscription streams",
		})

	// Token query cache
	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_cache_hits_total",
			Help: "Token query cache hits",
		},
		[]string{"operation"},
	)
	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_cache_misses_total",
			Help: "Token query cache misses",
		},
		[]string{"operation"},
	)

	// Ingest metrics
	IngestCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_ingest_events_total",
			Help: "Total launchpad events ingested",
		})
	IngestErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_ingest_errors_total",
			Help: "Launchpad ingest errors",
		})
	IngestLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_ingest_latency_seconds",
			Help:    "Time to ingest one event",
			Buckets: prometheus.DefBuckets,
		})

	// Normalize metrics
	NormalizeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_normalize_latency_seconds",
			Help:    "Time to normalize one event",
			Buckets: prometheus.DefBuckets,
		})
	NormalizeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_normalize_errors_total",
			Help: "Normalization errors",
		})
	NormalizeCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_normalize_events_total",
			Help: "Total events normalized",
		})

	// Sink metrics
	SinkWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sink_writes_total",
			Help: "Events written per sink",
		},
		[]string{"sink", "status"},
	)

	// Cache/Pub metrics
	CachePubErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_cachepub_errors_total",
			Help: "Cache/Pub/Sub errors",
		})
	CachePubCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_cachepub_events_total",
			Help: "Total cache/pub events processed",
		})
	CachePubLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_cachepub_latency_seconds",
			Help:    "Time to process cache/pub event",
			Buckets: prometheus.DefBuckets,
		})

	// Anomaly metrics
	AnomalyErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_anomaly_errors_total",
			Help: "Anomaly detection errors",
		})
	AnomalyCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_anomaly_events_total",
			Help: "Total anomalies detected",
		})
	AnomalyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_anomaly_latency_seconds",
			Help:    "Time to detect anomaly",
			Buckets: prometheus.DefBuckets,
		})

	// Archival metrics
	ArchivalSuccessCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_archival_success_total",
			Help: "Total successful archival operations",
		})
	ArchivalErrorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_archival_errors_total",
			Help: "Total archival errors",
		})
	ArchivalLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_archival_latency_seconds",
			Help:    "Time to archive data",
			Buckets: prometheus.DefBuckets,
		})

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	APIRequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_websocket_connections",
			Help: "Number of relay websocket clients",
		})

	// Redis metrics
	RedisOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	RedisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total Redis errors",
		},
		[]string{"operation"},
	)

	// Database metrics
	DatabaseHealthCheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "database_health_check_duration_seconds",
			Help:    "Database health check duration",
			Buckets: prometheus.DefBuckets,
		})
	DatabaseHealthCheckErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "database_health_check_errors_total",
			Help: "Total database health check errors",
		})
	DatabaseOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_operation_duration_seconds",
			Help:    "Database operation duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
	DatabaseErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_errors_total",
			Help: "Total database errors",
		},
		[]string{"operation"},
	)

	// Authentication metrics
	AuthOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_operations_total",
			Help: "Total authentication operations",
		},
		[]string{"operation", "status"},
	)
	AuthMiddlewareErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_middleware_errors_total",
			Help: "Total authentication middleware errors",
		},
		[]string{"error_type"},
	)
)

func init() {
	// MustRegister panics if registration fails (e.g. duplicate)
	prometheus.MustRegister(
		GraphQLRequestDuration, GraphQLRequestTotal, GraphQLErrors, GraphQLRetries,
		SubscriptionMessages, SubscriptionReconnects, ActiveSubscriptions,
		CacheHits, CacheMisses,
		IngestCounter, IngestErrors, IngestLatency,
		NormalizeLatency, NormalizeErrors, NormalizeCounter,
		SinkWrites,
		CachePubErrors, CachePubCounter, CachePubLatency,
		AnomalyErrors, AnomalyCounter, AnomalyLatency,
		ArchivalSuccessCounter, ArchivalErrorCounter, ArchivalLatency,
		APIRequestDuration, APIRequestTotal, ActiveConnections,
		RedisOperationDuration, RedisErrors,
		DatabaseHealthCheckDuration, DatabaseHealthCheckErrors,
		DatabaseOperationDuration, DatabaseErrors,
		AuthOperations, AuthMiddlewareErrors,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status maps an error to the status label used across collectors.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
