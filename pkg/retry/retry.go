// Package retry implements the exponential backoff policy shared by the
// ledger client pool and the ingestion pipeline's async writer.
package retry

import (
	"context"
	"math"
	"time"
)

// Policy describes an exponential backoff schedule: attempt 1 waits Base,
// attempt 2 waits Base*Factor, and so on, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Factor      float64
	MaxDelay    time.Duration
}

// BatchPolicy is the writer's backoff schedule for batch ledger writes:
// base 2s, up to 5 attempts, capped at 10s.
func BatchPolicy() Policy {
	return Policy{MaxAttempts: 5, Base: 2 * time.Second, Factor: 2, MaxDelay: 10 * time.Second}
}

// SinglePolicy is the writer's backoff schedule for individual-write
// fallback: base 1s, up to 3 attempts, capped at 10s.
func SinglePolicy() Policy {
	return Policy{MaxAttempts: 3, Base: 1 * time.Second, Factor: 2, MaxDelay: 10 * time.Second}
}

// Delay returns the backoff delay before the given 1-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Base
	}
	d := float64(p.Base) * math.Pow(p.Factor, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Do runs fn up to p.MaxAttempts times, sleeping Delay(attempt) between
// attempts. It returns nil on the first success, or the last error once
// attempts are exhausted. It returns ctx.Err() immediately if the context is
// cancelled while sleeping.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
