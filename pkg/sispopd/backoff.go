package sispopd

import (
	"math/rand"
	"time"
)

// Backoff computes exponential retry delays with ±10% jitter.
type Backoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NextDelay returns the delay before retry number attempt (0-based).
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := b.BaseDelay
	for i := 0; i < attempt && delay < b.MaxDelay; i++ {
		delay *= 2
	}
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	delay += time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
	if delay < 0 {
		delay = b.BaseDelay
	}
	return delay
}
