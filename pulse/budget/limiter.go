// Package budget paces outbound requests to the export provider.
package budget

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/teranos/exportsync/errors"
	"github.com/teranos/exportsync/pulse"
)

// ErrRateLimited is returned by Wait when the limiter refuses a reservation.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter enforces max requests per minute, evenly spaced (burst of one).
// Time comes from a pulse.Clock so waits are free in tests.
// A nil *Limiter or one built with maxPerMinute <= 0 never limits.
type Limiter struct {
	maxPerMinute int
	limiter      *rate.Limiter
	clock        pulse.Clock
}

// NewLimiter creates a limiter with the wall clock
func NewLimiter(maxPerMinute int) *Limiter {
	return NewLimiterWithClock(maxPerMinute, pulse.RealClock{})
}

// NewLimiterWithClock creates a limiter with an injectable clock
func NewLimiterWithClock(maxPerMinute int, clock pulse.Clock) *Limiter {
	l := &Limiter{maxPerMinute: maxPerMinute, clock: clock}
	if maxPerMinute > 0 {
		l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxPerMinute)), 1)
	}
	return l
}

func (l *Limiter) unlimited() bool {
	return l == nil || l.limiter == nil
}

// Wait blocks until a slot is free or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l.unlimited() {
		return ctx.Err()
	}
	now := l.clock.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return errors.Wrap(ErrRateLimited, "reservation refused")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}

// Stats returns the configured rate and the delay before the next free slot.
func (l *Limiter) Stats() (maxPerMinute int, nextIn time.Duration) {
	if l.unlimited() {
		return 0, 0
	}
	return l.maxPerMinute, l.nextIn()
}

func (l *Limiter) nextIn() time.Duration {
	tokens := l.limiter.TokensAt(l.clock.Now())
	if tokens >= 1 {
		return 0
	}
	perToken := time.Minute / time.Duration(l.maxPerMinute)
	return time.Duration((1 - tokens) * float64(perToken))
}
