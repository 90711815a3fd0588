// Package retry maps classified fetch failures to a backoff decision. The
// policy is pure apart from jitter, which is injectable for tests.
package retry

import (
	"math/rand"
	"time"

	"winch/internal/fetch"
)

// MaxAttempts is the retry ceiling for transient failures.
const MaxAttempts = 3

type schedule struct {
	delays [MaxAttempts]time.Duration
	jitter time.Duration
}

var baseDelays = [MaxAttempts]time.Duration{
	120 * time.Second,
	240 * time.Second,
	480 * time.Second,
}

// schedules holds the per-kind backoff table. Kinds absent from the table are
// permanent.
var schedules = map[fetch.Kind]schedule{
	fetch.KindDownloadFailed:         {delays: baseDelays, jitter: 30 * time.Second},
	fetch.KindRateLimited:            {delays: baseDelays, jitter: 60 * time.Second},
	fetch.KindNetworkError:           {delays: baseDelays, jitter: 30 * time.Second},
	fetch.KindTokenAcquisitionFailed: {delays: baseDelays, jitter: 30 * time.Second},
}

// Decision is the outcome of classifying one failure.
type Decision struct {
	// Retry reports whether the task should return to pending.
	Retry bool
	// Delay is how long the task is gated before the next attempt.
	Delay time.Duration
}

// Policy decides retry behavior for classified failures.
type Policy struct {
	// jitterFrac returns a value in [0, 1) scaling the jitter window.
	jitterFrac func() float64
}

// New builds a policy with standard jitter.
func New() *Policy {
	return &Policy{jitterFrac: rand.Float64}
}

// NewWithJitter builds a policy with a caller-supplied jitter source.
// Tests pass a constant to make delays deterministic.
func NewWithJitter(frac func() float64) *Policy {
	if frac == nil {
		frac = rand.Float64
	}
	return &Policy{jitterFrac: frac}
}

// Decide maps a failure kind and 1-based attempt number (the task's retry
// count after increment) to a decision. Attempts past MaxAttempts and
// permanent kinds decide terminal failure.
func (p *Policy) Decide(kind fetch.Kind, attempt int) Decision {
	sched, ok := schedules[kind]
	if !ok {
		return Decision{}
	}
	if attempt < 1 || attempt > MaxAttempts {
		return Decision{}
	}
	delay := sched.delays[attempt-1]
	delay += time.Duration(p.jitterFrac() * float64(sched.jitter))
	return Decision{Retry: true, Delay: delay}
}
