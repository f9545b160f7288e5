// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheLookups counts cache lookups by cache name and result (hit|miss).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_gateway_cache_lookups_total",
			Help: "Cache lookups partitioned by cache and result.",
		},
		[]string{"cache", "result"},
	)

	// UpstreamRequests counts provider calls by provider, endpoint and outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqi_gateway_upstream_requests_total",
			Help: "Upstream provider requests partitioned by provider, endpoint and outcome.",
		},
		[]string{"provider", "endpoint", "outcome"},
	)

	// UpstreamLatency observes provider round-trip time in seconds.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqi_gateway_upstream_request_duration_seconds",
			Help:    "Histogram of upstream provider round-trip times.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "endpoint"},
	)

	// DroppedRecords counts search records excluded during normalization.
	DroppedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqi_gateway_dropped_records_total",
			Help: "Search records dropped because they could not be normalized.",
		},
	)
)
