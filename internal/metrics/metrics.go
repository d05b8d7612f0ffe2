// Package metrics defines custom Prometheus metrics for CobaltStore.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobaltstore_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobaltstore_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobaltstore_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cobaltstore_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Storage operation metrics.
var (
	// StorageOperationsTotal counts blob service operations by name and status.
	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cobaltstore_storage_operations_total",
			Help: "Blob service operations by type",
		},
		[]string{"operation", "status"},
	)

	// BlobsTotal is a gauge tracking total blob records (base blobs and
	// snapshots) across all containers.
	BlobsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobaltstore_blobs_total",
			Help: "Total blob records across all containers",
		},
	)

	// ContainersTotal is a gauge tracking total containers.
	ContainersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cobaltstore_containers_total",
			Help: "Total containers",
		},
	)

	// LeasesExpiredTotal counts leases removed by the expiry sweep.
	LeasesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cobaltstore_leases_expired_total",
			Help: "Leases removed by the expiry sweep",
		},
	)

	// BytesReceivedTotal counts total bytes received in request bodies.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cobaltstore_bytes_received_total",
			Help: "Total bytes received (request bodies)",
		},
	)

	// BytesSentTotal counts total bytes sent in response bodies.
	BytesSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cobaltstore_bytes_sent_total",
			Help: "Total bytes sent (response bodies)",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			StorageOperationsTotal,
			BlobsTotal,
			ContainersTotal,
			LeasesExpiredTotal,
			BytesReceivedTotal,
			BytesSentTotal,
		)
		// Initialize StorageOperationsTotal so it appears in /metrics
		// output before any operations have been performed.
		StorageOperationsTotal.WithLabelValues("ListContainers", "success")
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual container/blob names.
func NormalizePath(path string) string {
	// Known fixed paths.
	switch path {
	case "/health":
		return "/health"
	case "/healthz":
		return "/healthz"
	case "/readyz":
		return "/readyz"
	case "/docs", "/docs/":
		return "/docs"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/", "":
		return "/"
	}

	// Starts with /docs (Stoplight Elements assets).
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return "/"
	}

	// Split container from blob name.
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return "/{container}"
	}
	if trimmed[idx+1:] == "" {
		return "/{container}"
	}
	return "/{container}/{blob}"
}
