package endpoint

import "time"

// RetryPolicy controls how failed deliveries to an endpoint are retried.
// The engine carries a system-wide default; endpoints may override it.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of delivery attempts. Always >= 1.
	MaxAttempts int `json:"max_attempts"`

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration `json:"initial_delay"`

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration `json:"max_delay"`

	// Multiplier is the exponential backoff factor. Always > 1.
	Multiplier float64 `json:"multiplier"`
}

// Delay returns the wait before the next attempt after attempt number n
// (1-based): min(MaxDelay, InitialDelay * Multiplier^(n-1)).
// Monotonically non-decreasing in n.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Valid reports whether the policy satisfies its invariants.
func (p RetryPolicy) Valid() bool {
	return p.MaxAttempts >= 1 && p.InitialDelay > 0 && p.MaxDelay >= p.InitialDelay && p.Multiplier > 1
}
