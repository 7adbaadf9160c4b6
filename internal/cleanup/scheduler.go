// Package cleanup deletes processed input files after their job reaches a
// terminal state. Deletion is deferred and idempotent: paths are collected in
// a dedup set and removed by a periodic sweep, so a crash between job
// completion and sweep loses nothing but a retry.
package cleanup

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/mediamill/mediamill/internal/logger"
)

// Reason records why a path was scheduled for deletion.
type Reason string

const (
	ReasonCompleted     Reason = "completed"
	ReasonMaxRetries    Reason = "max-retries-exceeded"
	ReasonUnrecoverable Reason = "unrecoverable-error"
)

type entry struct {
	reason      Reason
	scheduledAt time.Time
}

// Scheduler is a deferred file deleter. Schedule is safe to call multiple
// times for the same path; the path is deleted once.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]entry

	interval  time.Duration
	onCleaned func(path string, reason Reason)
}

type Option func(*Scheduler)

// WithOnCleaned registers a callback invoked after each successful removal.
func WithOnCleaned(fn func(path string, reason Reason)) Option {
	return func(s *Scheduler) { s.onCleaned = fn }
}

func NewScheduler(interval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		pending:  make(map[string]entry),
		interval: interval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule queues a path for deletion. Re-scheduling an already pending path
// keeps the original entry.
func (s *Scheduler) Schedule(path string, reason Reason) {
	if path == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[path]; ok {
		return
	}
	s.pending[path] = entry{reason: reason, scheduledAt: time.Now()}
}

func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Sweep attempts every pending deletion once. A missing file counts as
// success; any other failure keeps the path queued for the next sweep.
func (s *Scheduler) Sweep() int {
	s.mu.Lock()
	batch := make(map[string]entry, len(s.pending))
	for path, e := range s.pending {
		batch[path] = e
	}
	s.pending = make(map[string]entry)
	s.mu.Unlock()

	log := logger.Default()
	cleaned := 0

	for path, e := range batch {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			log.Warn("cleanup failed, will retry", "path", path, "error", err)
			s.mu.Lock()
			if _, ok := s.pending[path]; !ok {
				s.pending[path] = e
			}
			s.mu.Unlock()
			continue
		}

		cleaned++
		log.Debug("cleaned up input file", "path", path, "reason", string(e.reason))
		if s.onCleaned != nil {
			s.onCleaned(path, e.reason)
		}
	}
	return cleaned
}

// Run sweeps on the configured interval until the context is canceled, with
// one final sweep on the way out.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Sweep()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
