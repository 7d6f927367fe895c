package infra

import (
	"math/rand"
	"time"
)

const (
	baseBackoff = 500 * time.Millisecond
	maxBackoff  = 30 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt (0-based):
// exponential from 500ms, capped at 30s, with up to 20% jitter.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}

	d := baseBackoff << attempt
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}

	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d - jitter
}
