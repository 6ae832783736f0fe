package worker

import (
	"math"
	"time"
)

const (
	defaultInitialDelay  = time.Second
	defaultBackoffFactor = 2.0
)

// RetryPolicy controls how failed sync tasks are rescheduled. Zero-value
// fields fall back to sane defaults, so RetryPolicy{} is usable as-is.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the backoff before the given attempt is retried.
// Attempts are 1-based; the delay grows exponentially and is capped at
// MaxDelay when one is set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = defaultInitialDelay
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = defaultBackoffFactor
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = defaultInitialDelay
	}
	return d
}
