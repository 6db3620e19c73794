package ratelimit

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/metrics"
)

// ErrRetriesExhausted is returned once a unit of work has used up its backoff
// budget. The orchestrator treats it as terminal for that unit of work.
var ErrRetriesExhausted = errors.New("rate limit retries exhausted")

// BackoffPolicy computes jittered exponential delays between rate-limit
// retries for a single unit of work. Platform labels the delay metric.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
	Platform    string

	jitter  func(limit time.Duration) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	observe func(platform string, delay time.Duration)
}

// NewBackoffPolicy builds a policy with the platform defaults.
func NewBackoffPolicy(base time.Duration, maxAttempts int) *BackoffPolicy {
	if base <= 0 {
		base = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &BackoffPolicy{
		BaseDelay:   base,
		MaxAttempts: maxAttempts,
		jitter:      randomJitter,
		sleep:       sleepCtx,
		observe:     metrics.ObserveRateLimitDelay,
	}
}

// Delay returns the pre-jitter delay for the given zero-based attempt:
// base * 2^attempt. Strictly increasing in attempt.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << uint(attempt)
}

// wait sleeps for the jittered delay of the given attempt and records it.
func (p *BackoffPolicy) wait(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt) + p.jitter(p.BaseDelay)
	p.observe(p.Platform, delay)
	return p.sleep(ctx, delay)
}

// Retry runs op, retrying on detected rate limiting with exponential backoff.
// Before each retry it invokes recover (typically a navigation to a neutral
// page) to reset any server-side rate-limit association. Non-rate-limit
// errors are returned immediately; exhausting the attempt budget returns
// ErrRetriesExhausted wrapping the last error.
func (p *BackoffPolicy) Retry(
	ctx context.Context,
	logger *zap.Logger,
	recover func(ctx context.Context) error,
	op func(ctx context.Context) error,
) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsRateLimited(err.Error()) {
			return err
		}
		lastErr = err
		if attempt == p.MaxAttempts-1 {
			break
		}
		logger.Warn("rate limited, backing off",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", p.Delay(attempt)),
			zap.Error(err),
		)
		if waitErr := p.wait(ctx, attempt); waitErr != nil {
			return waitErr
		}
		if recover != nil {
			if recErr := recover(ctx); recErr != nil {
				logger.Warn("rate limit recovery navigation failed", zap.Error(recErr))
			}
		}
	}
	return fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
