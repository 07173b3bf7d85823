package clients

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing requests.
type RateLimiter interface {
	// Allow checks if a request may proceed now
	Allow() bool

	// Wait blocks until a request is allowed or ctx is done
	Wait(ctx context.Context) error
}

// NewRateLimiter creates a token bucket limiter allowing perSecond requests
// on average with bursts of up to burst requests.
func NewRateLimiter(perSecond float64, burst int) RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
