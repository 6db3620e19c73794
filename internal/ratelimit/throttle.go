// Package ratelimit implements the request cadence throttle and the backoff
// controller shared by both acquisition engines.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

// Throttle enforces a minimum interval between consecutive requests. It is a
// single-slot gate keyed on the last call timestamp, not a token bucket: the
// engines issue requests strictly sequentially, so there is never more than
// one waiter worth budgeting for.
type Throttle struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	clock    pipeline.Clock
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewThrottle builds a throttle with the given minimum inter-request interval.
func NewThrottle(interval time.Duration, clock pipeline.Clock) *Throttle {
	return &Throttle{
		interval: interval,
		clock:    clock,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the configured interval has elapsed since the previous
// call, or the context is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	now := t.clock.Now()
	var wait time.Duration
	if !t.last.IsZero() {
		if elapsed := now.Sub(t.last); elapsed < t.interval {
			wait = t.interval - elapsed
		}
	}
	t.last = now.Add(wait)
	t.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	if err := t.sleep(ctx, wait); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
