package agent

import (
	"context"

	"golang.org/x/time/rate"
)

// newRateLimiter allows burst calls at once and refills perMinute tokens a
// minute. A non-positive perMinute disables limiting and returns nil.
func newRateLimiter(perMinute float64, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perMinute/60), burst)
}

// waitLimit blocks until l grants a token or ctx is done. A nil limiter never blocks.
func waitLimit(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
