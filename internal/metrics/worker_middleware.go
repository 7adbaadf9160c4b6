package metrics

import (
	"time"
)

// PrometheusCollector implements the job-queue MetricsCollector interface
// using Prometheus metrics for job processing statistics.
type PrometheusCollector struct{}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{}
}

// JobStarted is called when a job begins processing.
func (c *PrometheusCollector) JobStarted(jobType, queue string) {
	WorkerPoolActiveJobs.Inc()
}

// JobCompleted is called when a job finishes successfully.
func (c *PrometheusCollector) JobCompleted(jobType, queue string, duration time.Duration) {
	WorkerPoolActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(mediaTypeFromJobType(jobType), "success").Inc()
	JobsProcessingDuration.WithLabelValues(mediaTypeFromJobType(jobType)).Observe(duration.Seconds())
}

// JobFailed is called when a job fails permanently.
func (c *PrometheusCollector) JobFailed(jobType, queue string, duration time.Duration) {
	WorkerPoolActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(mediaTypeFromJobType(jobType), "error").Inc()
	JobsProcessingDuration.WithLabelValues(mediaTypeFromJobType(jobType)).Observe(duration.Seconds())
}

// JobRetrying is called when a job is being retried.
func (c *PrometheusCollector) JobRetrying(jobType, queue string, attempt int) {
	JobsRetriedTotal.WithLabelValues(mediaTypeFromJobType(jobType)).Inc()
}

// mediaTypeFromJobType strips the "process_" prefix from queue job types so
// metric labels stay aligned with the rest of the system.
func mediaTypeFromJobType(jobType string) string {
	const prefix = "process_"
	if len(jobType) > len(prefix) && jobType[:len(prefix)] == prefix {
		return jobType[len(prefix):]
	}
	return jobType
}
