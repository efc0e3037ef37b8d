// Package retry reruns transient failures with exponentially growing,
// jittered pauses between tries.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy shapes one retry loop. Zero values fall back to the defaults noted
// per field.
type Policy struct {
	Attempts  int           // total tries, including the first (default 3)
	BaseDelay time.Duration // pause before the second try (default 500ms)
	MaxDelay  time.Duration // growth cap (default 10s)
	Growth    float64       // delay multiplier between tries (default 2)
	Jitter    float64       // random fraction added to or shaved off each pause
	Logger    *zap.Logger
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Growth < 1 {
		p.Growth = 2
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

// Do runs op until it succeeds, the policy is exhausted, or ctx ends. A
// context error, whether observed directly or returned by op, is never
// retried: once the caller's deadline is gone every further try fails the
// same way.
func Do(ctx context.Context, p Policy, op func() error) error {
	p = p.withDefaults()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op()
		if err == nil {
			if attempt > 1 {
				p.Logger.Info("Call recovered after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == p.Attempts {
			return err
		}

		pause := p.pause(attempt)
		p.Logger.Warn("Call failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("attempts", p.Attempts),
			zap.Duration("pause", pause))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// pause is the delay after the given try: BaseDelay grown Growth-fold per
// completed try, capped at MaxDelay, then spread by up to ±Jitter.
func (p Policy) pause(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Growth
		if d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
