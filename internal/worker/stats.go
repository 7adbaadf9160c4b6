package worker

import (
	"sync/atomic"
	"time"
)

// Stats tracks per-engine counters with atomics so handlers never contend on
// a lock in the hot path.
type Stats struct {
	processed      atomic.Int64
	failed         atomic.Int64
	active         atomic.Int64
	retried        atomic.Int64
	filesCleaned   atomic.Int64
	totalTimeNanos atomic.Int64
	lastProcessed  atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) JobStarted() {
	s.active.Add(1)
}

func (s *Stats) JobFinished() {
	s.active.Add(-1)
}

func (s *Stats) JobCompleted(duration time.Duration) {
	s.processed.Add(1)
	s.totalTimeNanos.Add(int64(duration))
	s.lastProcessed.Store(time.Now().UnixNano())
}

func (s *Stats) JobFailed() {
	s.failed.Add(1)
	s.lastProcessed.Store(time.Now().UnixNano())
}

func (s *Stats) JobRetried() {
	s.retried.Add(1)
}

func (s *Stats) FileCleaned() {
	s.filesCleaned.Add(1)
}

// Snapshot is a point-in-time copy safe for serialization.
type Snapshot struct {
	Processed     int64         `json:"processed"`
	Failed        int64         `json:"failed"`
	Active        int64         `json:"active"`
	Retried       int64         `json:"retried"`
	FilesCleaned  int64         `json:"filesCleaned"`
	AvgProcessing time.Duration `json:"avgProcessingMs"`
	LastProcessed time.Time     `json:"lastProcessed"`
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Processed:    s.processed.Load(),
		Failed:       s.failed.Load(),
		Active:       s.active.Load(),
		Retried:      s.retried.Load(),
		FilesCleaned: s.filesCleaned.Load(),
	}
	if snap.Processed > 0 {
		snap.AvgProcessing = time.Duration(s.totalTimeNanos.Load() / snap.Processed)
	}
	if ts := s.lastProcessed.Load(); ts > 0 {
		snap.LastProcessed = time.Unix(0, ts)
	}
	return snap
}
