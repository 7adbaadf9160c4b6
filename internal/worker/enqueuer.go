package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/metrics"
	"github.com/mediamill/mediamill/internal/validate"
)

// Broker is the enqueue surface of the queue broker.
type Broker interface {
	Enqueue(jobType string, payload interface{}) (string, error)
}

// StatusCreator initializes the status record for a newly admitted job.
type StatusCreator interface {
	Create(ctx context.Context, jobID string) error
}

// Enqueuer is the admission gate in front of the queue: a job that fails
// validation never reaches a worker, and its uploaded file is deleted
// immediately.
type Enqueuer struct {
	broker Broker
	status StatusCreator
}

func NewEnqueuer(broker Broker, status StatusCreator) *Enqueuer {
	return &Enqueuer{broker: broker, status: status}
}

// Enqueue validates the job synchronously and submits it. On validation
// failure the input file is removed and the validation error is returned to
// the caller; nothing is queued.
func (e *Enqueuer) Enqueue(ctx context.Context, mediaJob *media.Job) (string, error) {
	log := logger.FromContext(ctx)

	if mediaJob.ID == "" {
		mediaJob.ID = uuid.New().String()
	}
	if mediaJob.UploadedAt.IsZero() {
		mediaJob.UploadedAt = time.Now()
	}

	info := validate.FileInfo{
		Path:         mediaJob.FilePath,
		OriginalName: mediaJob.OriginalName,
		MimeType:     mediaJob.MimeType,
		Size:         mediaJob.FileSize,
	}
	if err := validate.Input(mediaJob.Media, info); err != nil {
		e.reject(ctx, mediaJob, err)
		return "", err
	}

	vc := validate.Context{
		FileSize: mediaJob.FileSize,
		MimeType: mediaJob.MimeType,
		Filename: mediaJob.OriginalName,
	}
	if err := validate.Operations(mediaJob.Media, mediaJob.Operations, vc); err != nil {
		e.reject(ctx, mediaJob, err)
		return "", err
	}

	if err := e.status.Create(ctx, mediaJob.ID); err != nil {
		return "", fmt.Errorf("create status record: %w", err)
	}

	jobType := "process_" + string(mediaJob.Media)
	queueID, err := e.broker.Enqueue(jobType, mediaJob)
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", jobType, err)
	}

	log.Info("job enqueued",
		"job_id", mediaJob.ID,
		"queue_id", queueID,
		"media_type", string(mediaJob.Media),
		"operations", mediaJob.Operations.Count(),
	)
	return queueID, nil
}

func (e *Enqueuer) reject(ctx context.Context, mediaJob *media.Job, cause error) {
	log := logger.FromContext(ctx)
	metrics.ValidationFailuresTotal.WithLabelValues(string(mediaJob.Media), apperror.Code(cause)).Inc()
	log.Warn("job rejected at enqueue",
		"job_id", mediaJob.ID,
		"file", mediaJob.OriginalName,
		"error", cause,
	)
	if err := os.Remove(mediaJob.FilePath); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to delete rejected upload", "path", mediaJob.FilePath, "error", err)
	}
}
