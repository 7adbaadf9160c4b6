// Package worker implements the job lifecycle engine: claim, validate,
// execute, verify, classify failures and schedule cleanup.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/cleanup"
	"github.com/mediamill/mediamill/internal/events"
	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/metrics"
	"github.com/mediamill/mediamill/internal/pipeline"
	"github.com/mediamill/mediamill/internal/validate"
)

// StatusTracker persists the externally visible state of a job.
type StatusTracker interface {
	SetActive(ctx context.Context, jobID string) error
	SetProgress(ctx context.Context, jobID string, progress int) error
	IncrementAttempts(ctx context.Context, jobID string) (int, error)
	SetCompleted(ctx context.Context, jobID string, result *media.Result) error
	SetFailed(ctx context.Context, jobID, errMsg, failedReason string) error
	SetDelayed(ctx context.Context, jobID string, retryAfter time.Duration) error
}

// Engine runs the lifecycle for one media type. Image and video engines are
// independent instances sharing nothing but the status store and the bus.
type Engine struct {
	mediaType media.Type
	executor  *pipeline.Executor
	status    StatusTracker
	cleaner   *cleanup.Scheduler
	stats     *Stats
	retry     RetryPolicy
	bus       *events.Bus
}

type Option func(*Engine)

// WithStats shares a stats instance with collaborators created before the
// engine, such as the cleanup scheduler's deletion callback.
func WithStats(stats *Stats) Option {
	return func(e *Engine) { e.stats = stats }
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Engine) { e.retry = policy }
}

func NewEngine(mediaType media.Type, executor *pipeline.Executor, status StatusTracker, cleaner *cleanup.Scheduler, bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		mediaType: mediaType,
		executor:  executor,
		status:    status,
		cleaner:   cleaner,
		stats:     NewStats(),
		retry:     DefaultRetryPolicy(mediaType),
		bus:       bus,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Stats() *Stats {
	return e.stats
}

func (e *Engine) RetryPolicy() RetryPolicy {
	return e.retry
}

// JobType is the queue job type this engine registers for.
func (e *Engine) JobType() string {
	return "process_" + string(e.mediaType)
}

// Handler returns the queue handler function. A plain error return requests
// redelivery; middleware.Permanent stops it.
func (e *Engine) Handler() func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		var payload media.Job
		if err := j.UnmarshalPayload(&payload); err != nil {
			logger.FromContext(ctx).Error("invalid payload", "queue_id", j.ID, "error", err)
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		if payload.ID == "" {
			payload.ID = j.ID
		}

		ctx = logger.WithJobID(ctx, payload.ID)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With(
			"media_type", string(e.mediaType),
			"file", payload.OriginalName,
		))

		e.stats.JobStarted()
		defer e.stats.JobFinished()

		return e.process(ctx, &payload)
	}
}

func (e *Engine) process(ctx context.Context, mediaJob *media.Job) error {
	log := logger.FromContext(ctx)
	start := time.Now()

	attempts := e.claimAttempt(ctx, mediaJob.ID)
	log.Info("job claimed", "attempt", attempts)

	e.bus.Publish(events.Event{
		Kind:      events.JobStarted,
		JobID:     mediaJob.ID,
		MediaType: e.mediaType,
		Attempt:   attempts,
	})

	if err := validate.Input(e.mediaType, validate.FileInfo{
		Path:         mediaJob.FilePath,
		OriginalName: mediaJob.OriginalName,
		MimeType:     mediaJob.MimeType,
		Size:         mediaJob.FileSize,
	}); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(string(e.mediaType), apperror.Code(err)).Inc()
		return e.fail(ctx, mediaJob, attempts, fmt.Errorf("input validation: %w", err))
	}

	e.setProgress(ctx, mediaJob.ID, 10)

	if err := validate.Operations(e.mediaType, mediaJob.Operations, validate.Context{
		FileSize: mediaJob.FileSize,
		MimeType: mediaJob.MimeType,
		Filename: mediaJob.OriginalName,
	}); err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(string(e.mediaType), apperror.Code(err)).Inc()
		return e.fail(ctx, mediaJob, attempts, fmt.Errorf("operation validation: %w", err))
	}

	e.setProgress(ctx, mediaJob.ID, 30)

	result, err := e.executor.Execute(ctx, mediaJob)
	if err != nil {
		return e.fail(ctx, mediaJob, attempts, err)
	}

	e.setProgress(ctx, mediaJob.ID, 90)

	if err := e.status.SetCompleted(ctx, mediaJob.ID, result); err != nil {
		// The output exists; losing the status write is retryable but the
		// transform must not be redone, so log and carry on.
		log.Error("failed to persist completion", "error", err)
	}

	for _, stage := range result.Operations {
		metrics.StagesExecutedTotal.WithLabelValues(string(e.mediaType), stage).Inc()
	}

	e.cleaner.Schedule(mediaJob.FilePath, cleanup.ReasonCompleted)
	e.stats.JobCompleted(result.ProcessingTime)
	e.bus.Publish(events.Event{
		Kind:      events.JobCompleted,
		JobID:     mediaJob.ID,
		MediaType: e.mediaType,
		Attempt:   attempts,
		Detail:    result.OutputPath,
	})

	log.Info("job completed",
		"output_path", result.OutputPath,
		"processed_size", result.ProcessedSize,
		"operations", len(result.Operations),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// claimAttempt marks the job active and bumps the durable attempt counter.
// When the status store is unreachable the job still runs; it just loses
// attempt accounting for this delivery.
func (e *Engine) claimAttempt(ctx context.Context, jobID string) int {
	log := logger.FromContext(ctx)

	if err := e.status.SetActive(ctx, jobID); err != nil {
		log.Warn("failed to mark job active", "error", err)
	}
	attempts, err := e.status.IncrementAttempts(ctx, jobID)
	if err != nil {
		log.Warn("failed to increment attempts", "error", err)
		return 1
	}
	return attempts
}

// setProgress is best-effort: a progress write must never fail the job.
func (e *Engine) setProgress(ctx context.Context, jobID string, progress int) {
	if err := e.status.SetProgress(ctx, jobID, progress); err != nil {
		logger.FromContext(ctx).Debug("progress update failed", "progress", progress, "error", err)
	}
}

// fail classifies the error and decides between redelivery and terminal
// failure. Terminal failures schedule input cleanup exactly once, here.
func (e *Engine) fail(ctx context.Context, mediaJob *media.Job, attempts int, err error) error {
	log := logger.FromContext(ctx)
	class := Classify(err)

	if class == Unrecoverable {
		log.Error("job failed permanently",
			"error", err,
			"code", apperror.Code(err),
			"attempt", attempts,
		)
		return e.terminate(ctx, mediaJob, attempts, err, "unrecoverable-error", cleanup.ReasonUnrecoverable)
	}

	if e.retry.Exhausted(attempts) {
		log.Error("retries exhausted",
			"error", err,
			"attempts", attempts,
			"max_attempts", e.retry.MaxAttempts,
		)
		return e.terminate(ctx, mediaJob, attempts, err, "max-retries-exceeded", cleanup.ReasonMaxRetries)
	}

	backoff := e.retry.Backoff(attempts)
	if statusErr := e.status.SetDelayed(ctx, mediaJob.ID, backoff); statusErr != nil {
		log.Warn("failed to mark job delayed", "error", statusErr)
	}
	e.stats.JobRetried()
	e.bus.Publish(events.Event{
		Kind:      events.JobRetrying,
		JobID:     mediaJob.ID,
		MediaType: e.mediaType,
		Error:     err.Error(),
		Attempt:   attempts,
	})

	log.Warn("job failed, will retry",
		"error", err,
		"attempt", attempts,
		"max_attempts", e.retry.MaxAttempts,
		"backoff", backoff.String(),
	)
	return err
}

func (e *Engine) terminate(ctx context.Context, mediaJob *media.Job, attempts int, err error, reason string, cleanupReason cleanup.Reason) error {
	if statusErr := e.status.SetFailed(ctx, mediaJob.ID, apperror.SafeMessage(err), reason); statusErr != nil {
		logger.FromContext(ctx).Warn("failed to persist terminal failure", "error", statusErr)
	}

	e.cleaner.Schedule(mediaJob.FilePath, cleanupReason)
	e.stats.JobFailed()
	e.bus.Publish(events.Event{
		Kind:      events.JobFailed,
		JobID:     mediaJob.ID,
		MediaType: e.mediaType,
		Error:     err.Error(),
		Attempt:   attempts,
		Detail:    reason,
	})
	return middleware.Permanent(err)
}
