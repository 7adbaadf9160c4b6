package media

import (
	"time"
)

// Type tags a job with the pipeline that must process it.
type Type string

const (
	TypeImage Type = "image"
	TypeVideo Type = "video"
)

// Priority is the queue tier requested at enqueue time. The broker owns the
// actual ordering; workers only echo the tier in logs and status.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Status values reported to the routing layer. A job never leaves
// StatusCompleted or StatusFailed once it has entered either.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
	StatusPaused    Status = "paused"
)

// Job is the payload delivered by the queue. It is owned by the queue until
// claimed and by the worker engine while active.
type Job struct {
	ID           string            `json:"id"`
	Media        Type              `json:"media_type"`
	FilePath     string            `json:"file_path"`
	OriginalName string            `json:"original_name"`
	FileSize     int64             `json:"file_size"`
	MimeType     string            `json:"mime_type"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	Operations   *OperationSet     `json:"operations,omitempty"`
	Priority     Priority          `json:"priority,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Result describes a successfully processed job.
type Result struct {
	OutputPath     string        `json:"output_path"`
	OriginalSize   int64         `json:"original_size"`
	ProcessedSize  int64         `json:"processed_size"`
	Format         string        `json:"format"`
	Width          int           `json:"width,omitempty"`
	Height         int           `json:"height,omitempty"`
	Duration       float64       `json:"duration,omitempty"`
	Operations     []string      `json:"operations"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// StatusRecord is the job status document served to the routing layer.
type StatusRecord struct {
	Status       Status     `json:"status"`
	Progress     int        `json:"progress,omitempty"`
	Result       *Result    `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`
	FailedReason string     `json:"failed_reason,omitempty"`
	Attempts     int        `json:"attempts,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
}
