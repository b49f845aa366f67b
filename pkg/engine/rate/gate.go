// Package rate provides the dispatch rate gate used by the engine scheduler:
// a single shared timestamp, protected by a mutex, that enforces a minimum
// interval between successive dispatch starts. It models a provider's
// requests-per-second cap, independent of any concurrency bound.
package rate

import (
	"context"
	"sync"
	"time"
)

// Gate serializes dispatch starts. Holding the internal mutex across the
// wait is intentional: concurrent callers queue up and leave the gate one
// interval apart. A zero or negative interval disables gating entirely.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	clk      func() time.Time
	last     time.Time
}

// NewGate builds a gate with the given minimum interval; clk is for tests
// and defaults to time.Now when nil.
func NewGate(interval time.Duration, clk func() time.Time) *Gate {
	if clk == nil {
		clk = time.Now
	}
	return &Gate{interval: interval, clk: clk}
}

// Wait blocks until at least the configured interval has elapsed since the
// previous caller passed the gate, then records the new dispatch time.
// Returns early with the context error on cancellation; in that case the
// timestamp is not advanced.
func (g *Gate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() {
		if wait := g.interval - g.clk().Sub(g.last); wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}
	g.last = g.clk()
	return nil
}

// sleepCtx sleeps in bounded steps so long waits still respond to
// cancellation promptly.
func sleepCtx(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			if !t.Stop() {
				<-t.C
			}
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return nil
}
