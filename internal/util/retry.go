// Package util holds small helpers shared by the socket and AI paths.
package util

import (
	"context"
	"time"
)

// Policy is a capped retry schedule: Attempts tries, waiting BaseDelay,
// then twice that, and so on, never more than MaxDelay.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Backoff returns the wait before retry number attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	// Cap attempt to avoid overflow in bit shift
	if attempt > 30 {
		attempt = 30
	}
	d := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do calls fn until it reports done, the attempts run out, or ctx ends. It
// returns the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (done bool)) int {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		if fn(attempt) || attempt == attempts {
			return attempt
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt
		case <-timer.C:
		}
	}
}
