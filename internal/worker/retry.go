package worker

import (
	"math/rand"
	"time"

	"github.com/mediamill/mediamill/internal/media"
)

// RetryPolicy bounds how often a recoverable failure is retried and how long
// to wait between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Video jobs get fewer attempts: each one is expensive and failures are
// rarely transient once ffmpeg has rejected the input.
func DefaultRetryPolicy(mediaType media.Type) RetryPolicy {
	if mediaType == media.TypeVideo {
		return RetryPolicy{
			MaxAttempts: 2,
			BaseDelay:   10 * time.Second,
			MaxDelay:    5 * time.Minute,
			Multiplier:  2,
		}
	}
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Second,
		MaxDelay:    2 * time.Minute,
		Multiplier:  2,
	}
}

// Backoff returns the delay before the given attempt (1-based), exponential
// with ±25% jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
	}
	if max := float64(p.MaxDelay); delay > max {
		delay = max
	}

	jitter := (rand.Float64()*0.5 - 0.25) * delay
	return time.Duration(delay + jitter)
}

// Exhausted reports whether the attempt counter has reached MaxAttempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
