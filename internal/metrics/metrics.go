package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediamill_jobs_processed_total",
			Help: "Total number of processed jobs",
		},
		[]string{"media_type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediamill_job_processing_duration_seconds",
			Help:    "Job processing duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"media_type"},
	)

	JobsRetriedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediamill_jobs_retried_total",
			Help: "Total number of job retry attempts",
		},
		[]string{"media_type"},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediamill_worker_active_jobs",
			Help: "Number of jobs currently being processed",
		},
	)

	WorkerPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediamill_worker_pool_size",
			Help: "Configured concurrency per worker pool",
		},
		[]string{"media_type"},
	)

	StagesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediamill_pipeline_stages_executed_total",
			Help: "Total number of executed pipeline stages",
		},
		[]string{"media_type", "stage"},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediamill_validation_failures_total",
			Help: "Total number of validation rejections",
		},
		[]string{"media_type", "code"},
	)

	CleanupFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediamill_cleanup_files_total",
			Help: "Total number of input files deleted by the cleanup sweeper",
		},
		[]string{"reason"},
	)

	CleanupPendingFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediamill_cleanup_pending_files",
			Help: "Number of files waiting for cleanup",
		},
	)

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediamill_queue_depth",
			Help: "Number of jobs in the queue by state",
		},
		[]string{"media_type", "state"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mediamill_app_info",
			Help: "Build information",
		},
		[]string{"version", "environment"},
	)
)

// SetAppInfo publishes the build identity as a constant gauge.
func SetAppInfo(version, environment string) {
	AppInfo.WithLabelValues(version, environment).Set(1)
}

// SetWorkerPoolSize records the configured concurrency for a pool.
func SetWorkerPoolSize(mediaType string, size int) {
	WorkerPoolSize.WithLabelValues(mediaType).Set(float64(size))
}
