package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mediamill/mediamill/internal/media"
)

func TestDefaultRetryPolicy(t *testing.T) {
	img := DefaultRetryPolicy(media.TypeImage)
	vid := DefaultRetryPolicy(media.TypeVideo)

	assert.Equal(t, 3, img.MaxAttempts)
	assert.Equal(t, 2, vid.MaxAttempts)
	assert.Greater(t, vid.BaseDelay, img.BaseDelay)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}

	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
	assert.True(t, p.Exhausted(4))
}

func TestRetryPolicy_BackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}

	// Jitter is ±25%, so compare against generous bounds.
	first := p.Backoff(1)
	assert.InDelta(t, float64(time.Second), float64(first), float64(time.Second)*0.3)

	third := p.Backoff(3)
	assert.InDelta(t, float64(4*time.Second), float64(third), float64(4*time.Second)*0.3)

	// Far past the cap, the delay stays near MaxDelay.
	capped := p.Backoff(30)
	assert.LessOrEqual(t, capped, time.Duration(float64(p.MaxDelay)*1.3))
	assert.GreaterOrEqual(t, capped, time.Duration(float64(p.MaxDelay)*0.7))
}

func TestRetryPolicy_BackoffHandlesZeroAttempt(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Multiplier: 2}
	assert.Greater(t, p.Backoff(0), time.Duration(0))
}

func TestStats_Counters(t *testing.T) {
	s := NewStats()

	s.JobStarted()
	s.JobStarted()
	s.JobCompleted(2 * time.Second)
	s.JobFinished()
	s.JobFailed()
	s.JobFinished()
	s.JobRetried()
	s.FileCleaned()

	snap := s.Snapshot()
	assert.Equal(t, int64(1), snap.Processed)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(0), snap.Active)
	assert.Equal(t, int64(1), snap.Retried)
	assert.Equal(t, int64(1), snap.FilesCleaned)
	assert.Equal(t, 2*time.Second, snap.AvgProcessing)
	assert.False(t, snap.LastProcessed.IsZero())
}

func TestStats_AvgProcessing(t *testing.T) {
	s := NewStats()
	s.JobCompleted(1 * time.Second)
	s.JobCompleted(3 * time.Second)

	assert.Equal(t, 2*time.Second, s.Snapshot().AvgProcessing)
}
