package queue

import "time"

// BackoffPolicy translates a failure into a retry-count increment and an
// eligibility gate. The gate is always strictly in the future so a failing
// item cannot loop within a single scheduler tick.
type BackoffPolicy struct {
	// BaseDelay is the gate offset after the first failure.
	BaseDelay time.Duration
	// MaxDelay caps the exponential curve.
	MaxDelay time.Duration
	// MaxRetryCount is the ceiling: items at or above it are permanently
	// failed and excluded from scheduling, but kept in the store for
	// inspection.
	MaxRetryCount int
}

// DefaultBackoff is the production policy.
var DefaultBackoff = BackoffPolicy{
	BaseDelay:     90 * time.Second,
	MaxDelay:      6 * time.Hour,
	MaxRetryCount: 10,
}

// acceleratedIncrement pushes an item toward permanent failure in one step.
// Vendor 400s (signature/auth mismatches) and 500s are not recoverable by
// short-horizon retrying.
const (
	defaultIncrement     = 1
	acceleratedIncrement = 20
)

// Increment returns how much the failure advances the retry count.
func (p BackoffPolicy) Increment(f *Failure) int {
	if f.Kind == KindFetchFailed && (f.StatusCode == 400 || f.StatusCode == 500) {
		return acceleratedIncrement
	}
	return defaultIncrement
}

// NextRun computes the eligibility gate for an item that now sits at
// retryCount. Monotonically non-decreasing in retryCount and always > now.
func (p BackoffPolicy) NextRun(now time.Time, retryCount int) time.Time {
	delay := p.BaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return now.Add(delay)
}

// Exhausted reports whether retryCount has passed the ceiling.
func (p BackoffPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxRetryCount
}
