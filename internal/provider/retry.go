// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
)

// RetryPolicy is bounded exponential backoff with jitter.
//
// MaxAttempts counts every call including the first. The wait before attempt
// n+1 is min(MaxDelay, BaseDelay*Multiplier^n) scaled by a random factor in
// [1-Jitter, 1+Jitter]. A Retry-After hint raises the wait, never lowers it,
// and is itself capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64

	// rand returns a value in [0, 1). Tests pin it.
	rand func() float64
}

// DefaultRetryPolicy is 3 attempts, 1s base, doubling, 30s cap, 20% jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

// RetryPolicyFromConfig builds a policy from provider settings.
func RetryPolicyFromConfig(cfg config.ProviderConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Multiplier:  cfg.Multiplier,
		MaxDelay:    cfg.MaxDelay,
		Jitter:      cfg.Jitter,
	}
}

// Delay returns the wait after the attempt with zero-based index n.
func (p RetryPolicy) Delay(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(n))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		r := rand.Float64
		if p.rand != nil {
			r = p.rand
		}
		d *= 1 - p.Jitter + 2*p.Jitter*r()
	}
	return time.Duration(d)
}

// retryWait is the wait after attempt n failed with err.
func (p RetryPolicy) retryWait(n int, err error) time.Duration {
	wait := p.Delay(n)
	var te *TransientError
	if errors.As(err, &te) && te.RetryAfter > wait {
		wait = te.RetryAfter
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
	}
	return wait
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out. The last error is returned wrapped with the attempt count.
// It gives up early when the next wait would outlast ctx's deadline.
func Do[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return zero, err
		}
		if attempt == attempts-1 {
			break
		}

		wait := p.retryWait(attempt, err)
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
			return zero, fmt.Errorf("%s: next attempt in %s would pass the deadline: %w", op, wait, lastErr)
		}
		metrics.RecordProviderRetry(op)
		logging.Ctx(ctx).Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt+1).
			Int("max_attempts", attempts).
			Dur("backoff", wait).
			Msg("Transient failure, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, lastErr)
}
