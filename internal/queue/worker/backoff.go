package worker

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff returns the wait before the next try of a job that has
// failed attempt+1 times: 2s, 4s, 8s ... capped at 5m, plus up to 250ms jitter.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := backoffCap

	raw := float64(backoffBase) * math.Pow(2, float64(attempt))
	if raw < float64(backoffCap) {
		delay = time.Duration(raw)
	}

	// small jitter (0–250ms) to avoid thundering herd
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}
