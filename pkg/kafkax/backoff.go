package kafkax

import "time"

// Backoff computes exponential retry delays: attempt N waits
// min(base * 2^(N-1), max).
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before re-invoking the handler after failed
// attempt number attempt (1-based). Attempts below 1 use the base delay.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	if d > b.Max {
		return b.Max
	}
	return d
}
