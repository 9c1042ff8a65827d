// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
)

// Record is a typed status document. Validate runs on every read and write.
type Record interface {
	Validate() error
}

// ErrSkipUpdate may be returned by an Update mutator to leave the record
// untouched. Update then returns the current record and a nil error.
var ErrSkipUpdate = errors.New("skip update")

// RecordsOptions tunes a typed collection.
type RecordsOptions struct {
	// TTL expires records. Zero keeps them forever.
	TTL time.Duration

	// CASAttempts bounds Update's compare-and-swap loop.
	CASAttempts int

	// WriteRetries and WriteRetryDelay retry store failures (not version
	// conflicts) with doubling delays before giving up.
	WriteRetries    int
	WriteRetryDelay time.Duration
}

// Records is a typed view over a Store for one kind of status record.
type Records[T Record] struct {
	store Store
	key   func(id string) string
	opts  RecordsOptions
}

// NewRecords returns a collection whose keys are derived by key.
func NewRecords[T Record](store Store, key func(id string) string, opts RecordsOptions) *Records[T] {
	if opts.CASAttempts < 1 {
		opts.CASAttempts = 16
	}
	return &Records[T]{store: store, key: key, opts: opts}
}

// Store returns the underlying store.
func (r *Records[T]) Store() Store {
	return r.store
}

// Get returns the record and its version.
func (r *Records[T]) Get(ctx context.Context, id string) (T, int64, error) {
	var zero T
	key := r.key(id)

	var entry Entry
	err := r.retry(ctx, "get", func() error {
		var err error
		entry, err = r.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return zero, 0, err
	}
	rec, err := r.decode(key, entry.Value)
	if err != nil {
		return zero, 0, err
	}
	return rec, entry.Version, nil
}

// Create writes rec only if no record exists for id.
func (r *Records[T]) Create(ctx context.Context, id string, rec T) (int64, error) {
	return r.compareAndSwap(ctx, id, 0, rec)
}

// Put overwrites the record unconditionally.
func (r *Records[T]) Put(ctx context.Context, id string, rec T) (int64, error) {
	key := r.key(id)
	data, err := r.encode(key, rec)
	if err != nil {
		return 0, err
	}
	var version int64
	err = r.retry(ctx, "set", func() error {
		var err error
		version, err = r.store.Set(ctx, key, data, r.opts.TTL)
		return err
	})
	return version, err
}

func (r *Records[T]) compareAndSwap(ctx context.Context, id string, expected int64, rec T) (int64, error) {
	key := r.key(id)
	data, err := r.encode(key, rec)
	if err != nil {
		return 0, err
	}
	var version int64
	err = r.retry(ctx, "cas", func() error {
		var err error
		version, err = r.store.CompareAndSwap(ctx, key, expected, data, r.opts.TTL)
		return err
	})
	return version, err
}

// Update applies fn to the current record and writes the result with
// compare-and-swap, re-reading and re-applying on version conflicts.
// exists is false when no record is stored; cur is then the zero value.
func (r *Records[T]) Update(ctx context.Context, id string, fn func(cur T, exists bool) (T, error)) (T, error) {
	var zero T
	key := r.key(id)

	for attempt := 0; attempt < r.opts.CASAttempts; attempt++ {
		cur, version, err := r.Get(ctx, id)
		exists := true
		if errors.Is(err, ErrNotFound) {
			exists, version, err = false, 0, nil
		}
		if err != nil {
			return zero, err
		}

		next, err := fn(cur, exists)
		if errors.Is(err, ErrSkipUpdate) {
			return cur, nil
		}
		if err != nil {
			return zero, err
		}

		_, err = r.compareAndSwap(ctx, id, version, next)
		if err == nil {
			metrics.RecordStatusStoreOp("update", "success")
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return zero, err
		}
		metrics.StatusStoreCASRetries.Inc()
	}

	metrics.RecordStatusStoreOp("update", "conflict")
	return zero, wrapErr("update", key, fmt.Errorf("%w after %d attempts", ErrVersionConflict, r.opts.CASAttempts))
}

// Increment atomically applies inc to the record and returns the new value.
// Only tokened increments are retried: a failure may be reported after the
// store applied the change, and retrying an untokened increment would count
// it twice.
func (r *Records[T]) Increment(ctx context.Context, id string, inc Increment) (int64, error) {
	key := r.key(id)
	if inc.Token == "" {
		n, err := r.store.IncrementField(ctx, key, inc)
		r.recordOp("increment", err)
		return n, err
	}
	var n int64
	err := r.retry(ctx, "increment", func() error {
		var err error
		n, err = r.store.IncrementField(ctx, key, inc)
		return err
	})
	return n, err
}

func (r *Records[T]) encode(key string, rec T) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, wrapErr("validate", key, err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, wrapErr("encode", key, err)
	}
	return data, nil
}

func (r *Records[T]) decode(key string, data []byte) (T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, wrapErr("decode", key, err)
	}
	if err := rec.Validate(); err != nil {
		return rec, wrapErr("validate", key, err)
	}
	return rec, nil
}

// retry runs op, retrying store failures with doubling delays. Missing keys,
// version conflicts, and validation failures are returned immediately.
func (r *Records[T]) retry(ctx context.Context, opName string, op func() error) error {
	delay := r.opts.WriteRetryDelay
	var err error
	for attempt := 0; attempt <= r.opts.WriteRetries; attempt++ {
		err = op()
		if err == nil || !retryable(err) {
			break
		}
		if attempt == r.opts.WriteRetries {
			break
		}
		logging.Ctx(ctx).Warn().Err(err).
			Str("operation", opName).
			Int("attempt", attempt+1).
			Msg("Status store operation failed, retrying")
		if delay > 0 {
			select {
			case <-ctx.Done():
				return wrapErr(opName, "", ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	r.recordOp(opName, err)
	return err
}

func (r *Records[T]) recordOp(opName string, err error) {
	switch {
	case err == nil:
		metrics.RecordStatusStoreOp(opName, "success")
	case errors.Is(err, ErrNotFound):
		metrics.RecordStatusStoreOp(opName, "not_found")
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrLimitExceeded):
		metrics.RecordStatusStoreOp(opName, "conflict")
	default:
		metrics.RecordStatusStoreOp(opName, "error")
	}
}

func retryable(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrClosed) || errors.Is(err, ErrLimitExceeded) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StoreError
	if errors.As(err, &se) && (se.Op == "validate" || se.Op == "decode" || se.Op == "encode") {
		return false
	}
	return true
}
