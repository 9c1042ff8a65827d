// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Entry is a stored document and its version. Versions start at 1 and grow
// by one on every successful write.
type Entry struct {
	Value   []byte
	Version int64
}

// Store is the low-level versioned key/value contract every backend meets.
//
// CompareAndSwap with expectedVersion 0 means "the key must not exist".
// IncrementField treats the value as a JSON object and adds inc.Delta to one
// of its integer fields, bumping the version, in a single atomic step.
type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (int64, error)
	CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte, ttl time.Duration) (int64, error)
	IncrementField(ctx context.Context, key string, inc Increment) (int64, error)
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Increment is one IncrementField call.
type Increment struct {
	Field string
	Delta int64

	// Token makes the increment apply at most once per record: a call
	// repeating a token already applied returns the field's current value
	// and leaves the record untouched. Tokens live as long as the record.
	Token string

	// Limit, when positive, is the highest value Field may reach. A call
	// that would pass it fails with ErrLimitExceeded and changes nothing.
	Limit int64
}

// GarbageCollector is implemented by backends that need periodic maintenance.
type GarbageCollector interface {
	CollectGarbage() error
}

var (
	// ErrNotFound is returned when a key does not exist or has expired.
	ErrNotFound = errors.New("status record not found")

	// ErrVersionConflict is returned when a compare-and-swap lost a race.
	ErrVersionConflict = errors.New("status record version conflict")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("status store closed")

	// ErrLimitExceeded is returned when an increment would pass its limit.
	ErrLimitExceeded = errors.New("increment would exceed limit")
)

// StoreError wraps every failure that crosses the store boundary.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("status store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("status store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrapErr(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Key: key, Err: err}
}

// IsUnavailable reports whether err is a store failure other than a missing
// key or a lost CAS race.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrLimitExceeded) {
		return false
	}
	var se *StoreError
	return errors.As(err, &se)
}

// readJSONField returns an integer field of a JSON object, 0 when absent.
func readJSONField(fields map[string]json.RawMessage, field string) (int64, error) {
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %q is not an integer: %w", field, err)
	}
	return n, nil
}

// currentJSONField returns one integer field of a JSON document.
func currentJSONField(doc []byte, field string) (int64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return 0, fmt.Errorf("decode document: %w", err)
	}
	return readJSONField(fields, field)
}

// incrementJSONField applies inc to a JSON object and returns the rewritten
// document. Every other field is copied byte for byte. Tokens are the
// caller's concern.
func incrementJSONField(doc []byte, inc Increment) ([]byte, int64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, 0, fmt.Errorf("decode document: %w", err)
	}
	current, err := readJSONField(fields, inc.Field)
	if err != nil {
		return nil, 0, err
	}
	next := current + inc.Delta
	if inc.Limit > 0 && next > inc.Limit {
		return nil, current, fmt.Errorf("%w: %s would be %d, limit %d", ErrLimitExceeded, inc.Field, next, inc.Limit)
	}
	fields[inc.Field] = json.RawMessage(strconv.FormatInt(next, 10))
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, 0, fmt.Errorf("encode document: %w", err)
	}
	return out, next, nil
}
