package crawler

import (
	"context"
	"time"
)

// Pauser blocks for a delay or until ctx is done.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// TimerPauser is the real Pauser.
type TimerPauser struct{}

// Pause waits for delay, returning ctx.Err() if the context ends first.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttle paces outbound requests with a fixed delay plus random jitter.
type Throttle struct {
	base   time.Duration
	jitter time.Duration
	pauser Pauser
}

// NewThrottle builds a Throttle. A nil pauser uses TimerPauser.
func NewThrottle(base, jitter time.Duration, pauser Pauser) *Throttle {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	return &Throttle{base: base, jitter: jitter, pauser: pauser}
}

// Delay returns the next pacing delay without sleeping.
func (t *Throttle) Delay() time.Duration {
	if t == nil {
		return 0
	}
	return t.base + randomDuration(t.jitter)
}

// Wait sleeps for the next pacing delay.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return t.pauser.Pause(ctx, t.Delay())
}
