package pipeline

import (
	"math/rand"
	"time"
)

// RetryPolicy computes backoff delays and retry eligibility for failed
// attempts. Attempt numbers start at 1.
type RetryPolicy struct {
	// MaxAttempts bounds the total attempts per chunk, first try included.
	MaxAttempts int

	// BaseBackoff is the delay before attempt 2; it doubles per attempt.
	BaseBackoff time.Duration

	// MaxBackoff caps the computed delay, jitter included.
	MaxBackoff time.Duration
}

// ShouldRetry reports whether another attempt is allowed after the given
// attempt number failed transiently.
func (p RetryPolicy) ShouldRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Backoff returns the delay to wait after the given attempt failed:
// base * 2^(attempt-1) plus up to 25% jitter, clamped to MaxBackoff. The
// clamp applies after jitter so delays stay monotonically non-decreasing up
// to the cap.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			break
		}
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	if d > 0 {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	if d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	return d
}
