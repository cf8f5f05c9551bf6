package provider

import (
	"context"
	"time"
)

// Limiter is satisfied by RateLimiter and by golang.org/x/time/rate.Limiter.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RateLimiter grants at most one request per interval across every caller
// sharing it. A caller holds the single slot while it sleeps toward the next
// allowed time, so two waiters can never both see the watermark as passed.
type RateLimiter struct {
	interval time.Duration
	slot     chan struct{}
	next     time.Time

	now     func() time.Time
	onGrant func(time.Time)
}

func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval < 0 {
		interval = 0
	}
	return &RateLimiter{
		interval: interval,
		slot:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Interval returns the configured minimum spacing between grants.
func (l *RateLimiter) Interval() time.Duration {
	return l.interval
}

// Wait blocks until the caller may send a request or ctx is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	for {
		wait := l.next.Sub(l.now())
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	granted := l.now()
	l.next = granted.Add(l.interval)
	if l.onGrant != nil {
		l.onGrant(granted)
	}
	return nil
}
