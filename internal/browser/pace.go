package browser

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer inserts human-like pauses between UI steps.
type Pacer struct {
	Min, Max time.Duration

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a Pacer pausing for a random duration in [min, max].
func NewPacer(min, max time.Duration) *Pacer {
	return &Pacer{Min: min, Max: max, sleep: Sleep}
}

// Delay picks the next pause length.
func (p *Pacer) Delay() time.Duration {
	if p.Max <= p.Min {
		return p.Min
	}
	return p.Min + rand.N(p.Max-p.Min)
}

// Pause sleeps for Delay, returning early if ctx is done.
func (p *Pacer) Pause(ctx context.Context) error {
	if p == nil {
		return nil
	}
	d := p.Delay()
	if d <= 0 {
		return ctx.Err()
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = Sleep
	}
	return sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
