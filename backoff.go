package gengate

import (
	"math"
	"math/rand"
	"time"
)

// minRetryDelay floors the computed delay so jitter can never schedule
// an immediate retry.
const minRetryDelay = 100 * time.Millisecond

// retryDelay computes the backoff before the next attempt: exponential
// doubling from base, capped at max, with uniform jitter in
// ±jitter*delay to decorrelate concurrent retry sequences. attempt is
// 1-based (the attempt that just failed).
func retryDelay(attempt int, base, max time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(max) {
		delay = float64(max)
	}
	if jitter > 0 {
		delay += (rand.Float64()*2 - 1) * jitter * delay
	}
	if delay < float64(minRetryDelay) {
		delay = float64(minRetryDelay)
	}
	return time.Duration(delay)
}
