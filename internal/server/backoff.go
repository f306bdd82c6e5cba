package server

import (
	"math"
	"time"
)

// Backoff describes the delay between retries of a failing step.
// A Multiplier of 1 (or less) gives a fixed delay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultResolveBackoff waits a fixed five seconds between resolution attempts.
func DefaultResolveBackoff() Backoff {
	return Backoff{InitialDelay: 5 * time.Second, Multiplier: 1}
}

func defaultAcceptBackoff() Backoff {
	return Backoff{InitialDelay: 5 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
}

// Delay returns the wait before retry attempt N (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	mult := b.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 && delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
