// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package ratelimit limits sync triggers per user with a fixed-window counter
// kept in the status store, so every process sharing the store shares the limit.
//
// The window is fixed, not sliding: a user may fire max requests at the end
// of one window and max again at the start of the next.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/statusstore"
)

// ErrStoreUnavailable is wrapped by Acquire when the counter could not be read.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Counter is the slice of statusstore.Store the limiter needs.
type Counter interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter is a per-key fixed-window limiter.
type Limiter struct {
	counter     Counter
	maxRequests int64
	window      time.Duration
	failOpen    bool
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New returns a limiter admitting cfg.Requests calls per cfg.Window per key.
func New(counter Counter, cfg config.RateLimitConfig, opts ...Option) *Limiter {
	l := &Limiter{
		counter:     counter,
		maxRequests: int64(cfg.Requests),
		window:      cfg.Window,
		failOpen:    cfg.FailOpen,
		now:         time.Now,
	}
	if l.window < time.Second {
		l.window = time.Second
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// windowIndex is unix seconds divided by the window length in seconds.
func (l *Limiter) windowIndex(t time.Time) int64 {
	return t.Unix() / int64(l.window/time.Second)
}

// Key returns the counter key for key at time t.
func (l *Limiter) Key(key string, t time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, l.windowIndex(t))
}

// Acquire counts one request for key and reports whether it is within limit.
//
// When the store fails, Acquire returns false and an error wrapping
// ErrStoreUnavailable, unless the limiter was configured to fail open, in
// which case it returns true and logs a warning.
func (l *Limiter) Acquire(ctx context.Context, key string) (bool, error) {
	now := l.now()
	count, err := l.counter.IncrWindow(ctx, l.Key(key, now), l.window)
	if err != nil {
		metrics.RecordRateLimitStoreError(l.failOpen)
		if l.failOpen {
			logging.Ctx(ctx).Warn().Err(err).Str("key", key).
				Msg("Rate limit store unavailable, admitting request (fail-open)")
			return true, nil
		}
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if count > l.maxRequests {
		metrics.RecordRateLimitRejection()
		logging.Ctx(ctx).Debug().Str("key", key).Int64("count", count).
			Int64("max", l.maxRequests).Msg("Rate limit exceeded")
		return false, nil
	}
	return true, nil
}

// RetryAfter returns how long until the current window ends.
func (l *Limiter) RetryAfter() time.Duration {
	now := l.now()
	secs := int64(l.window / time.Second)
	next := time.Unix((l.windowIndex(now)+1)*secs, 0)
	return next.Sub(now)
}

var _ Counter = (statusstore.Store)(nil)
