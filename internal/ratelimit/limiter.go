// Package ratelimit provides strict-interval pacing for task admission.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter issues permits no faster than the configured rate by
// tracking the next permit time. Unlike a token bucket it allows no
// bursts: consecutive permits are always at least one interval apart.
//
// Pacing sits on top of the scheduler's concurrency bound, never in
// place of it.
type Limiter struct {
	mu             sync.Mutex
	nextPermitTime time.Time
	interval       time.Duration
}

// New creates a Limiter issuing ratePerSec permits per second.
func New(ratePerSec float64) *Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	return &Limiter{
		nextPermitTime: time.Now(),
		interval:       time.Duration(float64(time.Second) / ratePerSec),
	}
}

// Wait blocks until a permit is available or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	permitTime := l.nextPermitTime
	l.nextPermitTime = permitTime.Add(l.interval)
	l.mu.Unlock()

	waitDuration := time.Until(permitTime)
	if waitDuration <= 0 {
		// Behind schedule; proceed immediately.
		return ctx.Err()
	}

	timer := time.NewTimer(waitDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval returns the minimum spacing between permits.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}
