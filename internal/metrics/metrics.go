package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Upload pipeline metrics
var (
	// UploadsTotal counts upload attempts by outcome.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "attempts_total",
			Help:      "Total number of game video upload attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ValidationRejections counts files and forms rejected before any network call.
	ValidationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "validation_rejections_total",
			Help:      "Total number of uploads rejected by validation",
		},
		[]string{"reason"},
	)

	// UploadDuration tracks end-to-end pipeline time.
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Time taken by the upload pipeline",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// TransferDuration tracks the time taken to put an asset in object storage.
	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "transfer_duration_seconds",
			Help:      "Time taken to transfer an asset to object storage",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"asset"},
	)

	// TransferredBytes counts bytes written to object storage.
	TransferredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "transferred_bytes_total",
			Help:      "Total bytes transferred to object storage",
		},
		[]string{"asset"},
	)

	// Degradations counts best-effort steps that fell back.
	Degradations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "degradations_total",
			Help:      "Total number of best-effort steps that degraded",
		},
		[]string{"step"},
	)

	// ReconcileFailures counts failed writes of the failed status.
	ReconcileFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "reconcile_failures_total",
			Help:      "Total number of records that could not be marked failed",
		},
	)

	// ActiveUploads tracks in-flight pipeline invocations.
	ActiveUploads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "courtside",
			Subsystem: "upload",
			Name:      "active",
			Help:      "Number of in-flight upload pipelines",
		},
	)
)

// API metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "courtside",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AuthFailures counts authentication failures by type.
	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courtside",
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of authentication failures",
		},
		[]string{"reason"},
	)
)

// RecordOutcome records the result of one upload attempt.
func RecordOutcome(outcome string) {
	UploadsTotal.WithLabelValues(outcome).Inc()
}

// RecordDegradation records a best-effort step that fell back.
func RecordDegradation(step string) {
	Degradations.WithLabelValues(step).Inc()
}

// RecordRejection records a validation rejection.
func RecordRejection(reason string) {
	ValidationRejections.WithLabelValues(reason).Inc()
}
