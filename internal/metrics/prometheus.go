package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sungwon/dining-concierge/internal/upstream"
)

// Fulfillment metrics
var (
	FulfillmentOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fulfillment_outcomes_total",
			Help: "Total number of fulfillment attempts by terminal state and reason",
		},
		[]string{"state", "reason"},
	)

	FulfillmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fulfillment_duration_seconds",
			Help:    "Duration of a single fulfillment attempt",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Upstream metrics
var (
	UpstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Duration of calls to external collaborators",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service"}, // opensearch, dynamodb, postgres, ses, smtp
	)

	UpstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Total number of failed calls to external collaborators",
		},
		[]string{"service", "kind"}, // kind: transient, permanent
	)

	RecordCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "record_cache_lookups_total",
			Help: "Total number of record cache lookups by result",
		},
		[]string{"result"}, // hit, miss, error
	)
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Database metrics
var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total number of database errors",
		},
		[]string{"query"},
	)
)

// ObserveUpstream records the duration of a call to service and, when err is
// non-nil, counts it under its retry classification.
func ObserveUpstream(service string, start time.Time, err error) {
	UpstreamRequestDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamErrorsTotal.WithLabelValues(service, upstream.KindOf(err).String()).Inc()
	}
}

// ObserveQuery records the duration of a named database query and counts it
// as an error when err is non-nil.
func ObserveQuery(query string, start time.Time, err error) {
	DBQueryDuration.WithLabelValues(query).Observe(time.Since(start).Seconds())
	if err != nil {
		DBErrorsTotal.WithLabelValues(query).Inc()
	}
}
