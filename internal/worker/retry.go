package worker

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy drives the sync worker's backoff between delivery attempts.
// Jitter is a fraction of the computed delay (0.2 = plus or minus 20%) and
// keeps retries from different tasks from landing in lockstep.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// NextDelay returns the backoff before the given attempt (1-based):
// InitialDelay * BackoffFactor^(attempt-1), clamped to MaxDelay, with
// jitter applied after clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	d := time.Duration(float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if r.Jitter > 0 {
		d += time.Duration((rand.Float64()*2 - 1) * r.Jitter * float64(d))
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}
