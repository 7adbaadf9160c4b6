// Package queue tracks job status in Redis alongside the broker's streams.
// The broker owns delivery; this package owns the externally visible state of
// each job: status, progress, attempts, result and failure reason.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mediamill/mediamill/internal/apperror"
	"github.com/mediamill/mediamill/internal/media"
)

const statusKeyPrefix = "mediamill:job:"

// statusTTL bounds how long terminal job records stay queryable.
const statusTTL = 24 * time.Hour

type StatusStore struct {
	client *redis.Client
}

func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{client: client}
}

func statusKey(jobID string) string {
	return statusKeyPrefix + jobID
}

// Create initializes a job record in the waiting state.
func (s *StatusStore) Create(ctx context.Context, jobID string) error {
	key := statusKey(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(media.StatusWaiting),
		"progress", 0,
		"attempts", 0,
		"createdAt", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.Expire(ctx, key, statusTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("create status record: %w", err)
	}
	return nil
}

// SetActive marks the job as claimed by a worker.
func (s *StatusStore) SetActive(ctx context.Context, jobID string) error {
	return s.client.HSet(ctx, statusKey(jobID), "status", string(media.StatusActive)).Err()
}

// SetProgress updates the progress checkpoint. Failures here are the
// caller's to swallow; progress is advisory.
func (s *StatusStore) SetProgress(ctx context.Context, jobID string, progress int) error {
	return s.client.HSet(ctx, statusKey(jobID), "progress", progress).Err()
}

// IncrementAttempts bumps the durable attempt counter and returns the new
// value. The counter survives redelivery, unlike anything carried in the
// job payload.
func (s *StatusStore) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	n, err := s.client.HIncrBy(ctx, statusKey(jobID), "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment attempts: %w", err)
	}
	return int(n), nil
}

// SetCompleted stores the result and marks the job completed. Terminal states
// are never downgraded.
func (s *StatusStore) SetCompleted(ctx context.Context, jobID string, result *media.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	terminal, err := s.isTerminal(ctx, jobID)
	if err != nil {
		return err
	}
	if terminal {
		return nil
	}

	return s.client.HSet(ctx, statusKey(jobID),
		"status", string(media.StatusCompleted),
		"progress", 100,
		"result", string(data),
		"processedAt", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
}

// SetFailed marks the job failed with a reason. Terminal states are never
// downgraded.
func (s *StatusStore) SetFailed(ctx context.Context, jobID, errMsg, failedReason string) error {
	terminal, err := s.isTerminal(ctx, jobID)
	if err != nil {
		return err
	}
	if terminal {
		return nil
	}

	return s.client.HSet(ctx, statusKey(jobID),
		"status", string(media.StatusFailed),
		"error", errMsg,
		"failedReason", failedReason,
		"processedAt", time.Now().UTC().Format(time.RFC3339Nano),
	).Err()
}

// SetDelayed records that the job is waiting for a retry and when the next
// attempt is expected. The broker owns the actual redelivery cadence; the
// timestamp is the externally visible hint.
func (s *StatusStore) SetDelayed(ctx context.Context, jobID string, retryAfter time.Duration) error {
	terminal, err := s.isTerminal(ctx, jobID)
	if err != nil {
		return err
	}
	if terminal {
		return nil
	}
	return s.client.HSet(ctx, statusKey(jobID),
		"status", string(media.StatusDelayed),
		"nextRetryAt", time.Now().UTC().Add(retryAfter).Format(time.RFC3339Nano),
	).Err()
}

func (s *StatusStore) isTerminal(ctx context.Context, jobID string) (bool, error) {
	current, err := s.client.HGet(ctx, statusKey(jobID), "status").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	return current == string(media.StatusCompleted) || current == string(media.StatusFailed), nil
}

// Get returns the stored record, or ErrJobNotFound when nothing exists for
// the ID.
func (s *StatusStore) Get(ctx context.Context, jobID string) (*media.StatusRecord, error) {
	fields, err := s.client.HGetAll(ctx, statusKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read status record: %w", err)
	}
	if len(fields) == 0 {
		return nil, apperror.Wrap(fmt.Errorf("job %s", jobID), apperror.ErrJobNotFound)
	}

	record := &media.StatusRecord{
		Status:       media.Status(fields["status"]),
		Error:        fields["error"],
		FailedReason: fields["failedReason"],
	}
	if v, ok := fields["progress"]; ok {
		record.Progress, _ = strconv.Atoi(v)
	}
	if v, ok := fields["attempts"]; ok {
		record.Attempts, _ = strconv.Atoi(v)
	}
	if v, ok := fields["createdAt"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			record.CreatedAt = t
		}
	}
	if v, ok := fields["processedAt"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			record.ProcessedAt = &t
		}
	}
	if v, ok := fields["nextRetryAt"]; ok && v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			record.NextRetryAt = &t
		}
	}
	if v, ok := fields["result"]; ok && v != "" {
		var result media.Result
		if err := json.Unmarshal([]byte(v), &result); err == nil {
			record.Result = &result
		}
	}
	return record, nil
}

// GetResult resolves the output file of a finished job for download. The job
// must exist, be completed, and its output must still be on disk.
func (s *StatusStore) GetResult(ctx context.Context, jobID string) (*media.Result, error) {
	record, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record.Status != media.StatusCompleted || record.Result == nil {
		return nil, apperror.Wrap(fmt.Errorf("job %s is %s", jobID, record.Status), apperror.ErrJobNotCompleted)
	}
	if _, err := os.Stat(record.Result.OutputPath); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrFileNotFound)
	}
	return record.Result, nil
}
