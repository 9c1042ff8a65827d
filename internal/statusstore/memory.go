// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value   []byte
	version int64
	counter int64
	tokens  map[string]struct{}
	expires time.Time // zero means no expiry
}

// MemoryStore is a mutex-guarded map with expiry, for tests and
// single-process deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	closed  bool
	now     func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// SetClock replaces the store's clock. Tests use it to drive expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// lookup returns the live entry for key, dropping it if expired.
// Caller holds m.mu.
func (m *MemoryStore) lookup(key string) *memoryEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Entry{}, wrapErr("get", key, ErrClosed)
	}
	e := m.lookup(key)
	if e == nil || e.value == nil {
		return Entry{}, wrapErr("get", key, ErrNotFound)
	}
	return Entry{Value: append([]byte(nil), e.value...), Version: e.version}, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("set", key, ErrClosed)
	}
	return m.write(key, value, ttl), nil
}

// CompareAndSwap implements Store.
func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, expectedVersion int64, value []byte, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("cas", key, ErrClosed)
	}
	var current int64
	if e := m.lookup(key); e != nil {
		current = e.version
	}
	if current != expectedVersion {
		return 0, wrapErr("cas", key, ErrVersionConflict)
	}
	return m.write(key, value, ttl), nil
}

// write stores value with the next version. Applied increment tokens
// survive rewrites. Caller holds m.mu.
func (m *MemoryStore) write(key string, value []byte, ttl time.Duration) int64 {
	var version int64 = 1
	var tokens map[string]struct{}
	if e := m.lookup(key); e != nil {
		version = e.version + 1
		tokens = e.tokens
	}
	m.entries[key] = &memoryEntry{
		value:   append([]byte(nil), value...),
		version: version,
		tokens:  tokens,
		expires: m.expiry(ttl),
	}
	return version
}

// IncrementField implements Store.
func (m *MemoryStore) IncrementField(_ context.Context, key string, inc Increment) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("increment", key, ErrClosed)
	}
	e := m.lookup(key)
	if e == nil || e.value == nil {
		return 0, wrapErr("increment", key, ErrNotFound)
	}
	if _, seen := e.tokens[inc.Token]; seen && inc.Token != "" {
		n, err := currentJSONField(e.value, inc.Field)
		return n, wrapErr("increment", key, err)
	}
	doc, n, err := incrementJSONField(e.value, inc)
	if err != nil {
		return 0, wrapErr("increment", key, err)
	}
	e.value = doc
	e.version++
	if inc.Token != "" {
		if e.tokens == nil {
			e.tokens = make(map[string]struct{})
		}
		e.tokens[inc.Token] = struct{}{}
	}
	return n, nil
}

// IncrWindow implements Store.
func (m *MemoryStore) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, wrapErr("incr_window", key, ErrClosed)
	}
	e := m.lookup(key)
	if e == nil {
		e = &memoryEntry{expires: m.expiry(ttl)}
		m.entries[key] = e
	}
	e.counter++
	return e.counter, nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return wrapErr("ping", "", ErrClosed)
	}
	return nil
}

// CollectGarbage drops expired entries.
func (m *MemoryStore) CollectGarbage() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		m.lookup(key)
	}
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.entries = make(map[string]*memoryEntry)
	m.mu.Unlock()
	return nil
}
