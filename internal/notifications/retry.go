package notifications

import "time"

// RetryPolicy sets the attempt budget and backoff of email delivery.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy allows three attempts, one minute apart and doubling.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     time.Minute,
	MaxDelay:      time.Hour,
	BackoffFactor: 2.0,
}

// Delay returns how long to wait after the given number of failed attempts:
// min(BaseDelay * BackoffFactor^(failed-1), MaxDelay).
func (p RetryPolicy) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < failed; i++ {
		d *= p.BackoffFactor
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Exhausted reports whether a row with the given attempt count may not be
// tried again.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}
