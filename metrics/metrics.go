// Package metrics provides Prometheus metrics for the materials database MCP server.
// It tracks tool calls, upstream database traffic, files written and cost estimates.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "materials_db_mcp"
)

var (
	// RequestsTotal counts total MCP tool calls by tool name and status
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "requests_total",
		Help:      "Total number of MCP tool calls",
	}, []string{"tool", "status"})

	// RequestDuration measures tool call latency. OPTIMADE fan-outs routinely
	// take tens of seconds, hence the long tail buckets.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "request_duration_seconds",
		Help:      "Request latency distribution by tool",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"tool"})

	// RequestInFlight tracks currently executing requests
	RequestInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "requests_in_flight",
		Help:      "Number of requests currently being processed",
	}, []string{"tool"})

	// PanicsRecovered counts recovered panics
	PanicsRecovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "panics_recovered_total",
		Help:      "Number of panics recovered in tool handlers",
	}, []string{"tool"})

	// DatabaseAPILatency measures upstream call latency by database and action
	DatabaseAPILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "database_api_latency_seconds",
		Help:      "Upstream database API latency by database and action",
		Buckets:   prometheus.DefBuckets,
	}, []string{"database", "action"})

	// DatabaseAPIRequestsTotal counts upstream requests
	DatabaseAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "database_api_requests_total",
		Help:      "Total upstream database requests by database, action and status",
	}, []string{"database", "action", "status"})

	// DatabaseAPIErrors counts upstream errors by error code
	DatabaseAPIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "database_api_errors_total",
		Help:      "Upstream database errors by database, action and error code",
	}, []string{"database", "action", "error_code"})

	// DatabaseAPIRetries counts upstream request retries
	DatabaseAPIRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "database_api_retries_total",
		Help:      "Upstream retry count by database and action",
	}, []string{"database", "action"})

	// CircuitState exposes each breaker's state (0 closed, 1 open, 2 half-open)
	CircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
	}, []string{"database"})

	// RateLimitRejections counts HTTP requests rejected by the per-IP limiter
	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected due to rate limiting",
	})

	// RateLimitWaits counts upstream calls that had to wait for a client slot
	RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "rate_limit_waits_total",
		Help:      "Requests that waited for rate limiter semaphore",
	})

	// HTTPRequestsTotal counts HTTP transport requests
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method and status",
	}, []string{"method", "status"})

	// HTTPRequestDuration measures HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency distribution",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30, 120},
	}, []string{"method", "path"})

	// StructuresSaved counts files written to output directories
	StructuresSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "structures_saved_total",
		Help:      "Structure files written by database and format",
	}, []string{"database", "format"})

	// CIFDownloadBytes tracks sizes of CIF files fetched from upstream URLs
	CIFDownloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "cif_download_bytes",
		Help:      "Size distribution of downloaded CIF files in bytes",
		Buckets:   []float64{1000, 5000, 10000, 50000, 100000, 500000, 1000000},
	})

	// OptimadeProviderResults counts per-URL outcomes of OPTIMADE queries
	OptimadeProviderResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "optimade_provider_results_total",
		Help:      "OPTIMADE provider query outcomes by provider and status",
	}, []string{"provider", "status"})

	// PhotonsEstimated accumulates estimated cost in photons per tool
	PhotonsEstimated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "photons_estimated_total",
		Help:      "Estimated photon cost of tool calls",
	}, []string{"tool"})
)

// RecordRequest records a completed request with its duration and status
func RecordRequest(tool string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(tool, status).Inc()
	RequestDuration.WithLabelValues(tool).Observe(duration)
}

// RecordAPICall records an upstream database API call
func RecordAPICall(database, action string, duration float64, success bool, errorCode string) {
	status := "success"
	if !success {
		status = "error"
	}
	DatabaseAPIRequestsTotal.WithLabelValues(database, action, status).Inc()
	DatabaseAPILatency.WithLabelValues(database, action).Observe(duration)
	if errorCode != "" {
		DatabaseAPIErrors.WithLabelValues(database, action, errorCode).Inc()
	}
}

// RecordSaved counts a structure file written for database in format
func RecordSaved(database, format string) {
	StructuresSaved.WithLabelValues(database, format).Inc()
}

// RecordProviderResult records an OPTIMADE provider outcome
func RecordProviderResult(provider string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	OptimadeProviderResults.WithLabelValues(provider, status).Inc()
}

// SetCircuitState publishes a breaker state for database
func SetCircuitState(database string, state int) {
	CircuitState.WithLabelValues(database).Set(float64(state))
}
