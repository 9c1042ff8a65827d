// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tomtom215/stridesync/internal/logging"
)

// Key prefixes keep documents, window counters and applied increment
// tokens apart.
const (
	prefixDoc     = "d/"
	prefixCounter = "w/"
	prefixToken   = "t/"
)

// maxTxnRetries bounds retries of a transaction that hit badger.ErrConflict.
const maxTxnRetries = 8

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	Path       string
	InMemory   bool
	SyncWrites bool
	GCRatio    float64
}

// BadgerStore persists status records in an embedded BadgerDB. Documents are
// stored as an 8-byte big-endian version followed by the JSON body.
type BadgerStore struct {
	db      *badger.DB
	gcRatio float64

	mu     sync.RWMutex
	closed bool
}

// OpenBadger opens (or creates) the store at opts.Path.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.SyncWrites = opts.SyncWrites
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, wrapErr("open", opts.Path, fmt.Errorf("open BadgerDB: %w", err))
	}

	ratio := opts.GCRatio
	if ratio <= 0 || ratio >= 1 {
		ratio = 0.5
	}

	logging.Info().
		Str("path", opts.Path).
		Bool("in_memory", opts.InMemory).
		Msg("Status store opened")
	return &BadgerStore{db: db, gcRatio: ratio}, nil
}

func (b *BadgerStore) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (b *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxTxnRetries; attempt++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func encodeDoc(version int64, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(version))
	copy(buf[8:], value)
	return buf
}

func decodeDoc(raw []byte) (int64, []byte, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("corrupt record: %d bytes", len(raw))
	}
	return int64(binary.BigEndian.Uint64(raw[:8])), raw[8:], nil
}

// readDoc returns the current version (0 if absent), body, and the item's
// expiry so rewrites can preserve it.
func readDoc(txn *badger.Txn, key []byte) (version int64, body []byte, expiresAt uint64, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil, 0, nil
	}
	if err != nil {
		return 0, nil, 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, nil, 0, err
	}
	version, body, err = decodeDoc(raw)
	return version, body, item.ExpiresAt(), err
}

func newEntry(key, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(key, value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// Get implements Store.
func (b *BadgerStore) Get(ctx context.Context, key string) (Entry, error) {
	if err := b.checkOpen(ctx); err != nil {
		return Entry{}, wrapErr("get", key, err)
	}
	var out Entry
	err := b.db.View(func(txn *badger.Txn) error {
		version, body, _, err := readDoc(txn, []byte(prefixDoc+key))
		if err != nil {
			return err
		}
		if version == 0 {
			return ErrNotFound
		}
		out = Entry{Value: body, Version: version}
		return nil
	})
	if err != nil {
		return Entry{}, wrapErr("get", key, err)
	}
	return out, nil
}

// Set implements Store.
func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (int64, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, wrapErr("set", key, err)
	}
	var next int64
	err := b.update(func(txn *badger.Txn) error {
		k := []byte(prefixDoc + key)
		version, _, _, err := readDoc(txn, k)
		if err != nil {
			return err
		}
		next = version + 1
		return txn.SetEntry(newEntry(k, encodeDoc(next, value), ttl))
	})
	if err != nil {
		return 0, wrapErr("set", key, err)
	}
	return next, nil
}

// CompareAndSwap implements Store.
func (b *BadgerStore) CompareAndSwap(ctx context.Context, key string, expectedVersion int64, value []byte, ttl time.Duration) (int64, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, wrapErr("cas", key, err)
	}
	var next int64
	err := b.update(func(txn *badger.Txn) error {
		k := []byte(prefixDoc + key)
		version, _, _, err := readDoc(txn, k)
		if err != nil {
			return err
		}
		if version != expectedVersion {
			return ErrVersionConflict
		}
		next = version + 1
		return txn.SetEntry(newEntry(k, encodeDoc(next, value), ttl))
	})
	if err != nil {
		return 0, wrapErr("cas", key, err)
	}
	return next, nil
}

// IncrementField implements Store. The record keeps its original expiry and
// an applied token is stored under its own key with the same expiry.
func (b *BadgerStore) IncrementField(ctx context.Context, key string, inc Increment) (int64, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, wrapErr("increment", key, err)
	}
	var result int64
	err := b.update(func(txn *badger.Txn) error {
		k := []byte(prefixDoc + key)
		version, body, expiresAt, err := readDoc(txn, k)
		if err != nil {
			return err
		}
		if version == 0 {
			return ErrNotFound
		}

		var tk []byte
		if inc.Token != "" {
			tk = []byte(prefixToken + key + "\x00" + inc.Token)
			_, err := txn.Get(tk)
			switch {
			case err == nil:
				result, err = currentJSONField(body, inc.Field)
				return err
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		}

		doc, n, err := incrementJSONField(body, inc)
		if err != nil {
			return err
		}
		result = n
		e := badger.NewEntry(k, encodeDoc(version+1, doc))
		e.ExpiresAt = expiresAt
		if err := txn.SetEntry(e); err != nil {
			return err
		}
		if tk == nil {
			return nil
		}
		te := badger.NewEntry(tk, []byte{1})
		te.ExpiresAt = expiresAt
		return txn.SetEntry(te)
	})
	if err != nil {
		return 0, wrapErr("increment", key, err)
	}
	return result, nil
}

// IncrWindow implements Store. The TTL applies only on the first increment.
func (b *BadgerStore) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if err := b.checkOpen(ctx); err != nil {
		return 0, wrapErr("incr_window", key, err)
	}
	var count int64
	err := b.update(func(txn *badger.Txn) error {
		k := []byte(prefixCounter + key)
		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			count = 1
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, 1)
			return txn.SetEntry(newEntry(k, buf, ttl))
		case err != nil:
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(raw) != 8 {
			return fmt.Errorf("corrupt counter: %d bytes", len(raw))
		}
		count = int64(binary.BigEndian.Uint64(raw)) + 1
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(count))
		e := badger.NewEntry(k, buf)
		e.ExpiresAt = item.ExpiresAt()
		return txn.SetEntry(e)
	})
	if err != nil {
		return 0, wrapErr("incr_window", key, err)
	}
	return count, nil
}

// Ping implements Store.
func (b *BadgerStore) Ping(ctx context.Context) error {
	if err := b.checkOpen(ctx); err != nil {
		return wrapErr("ping", "", err)
	}
	if b.db.IsClosed() {
		return wrapErr("ping", "", ErrClosed)
	}
	return nil
}

// CollectGarbage runs value-log GC until nothing is left to rewrite.
func (b *BadgerStore) CollectGarbage() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for {
		err := b.db.RunValueLogGC(b.gcRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return wrapErr("gc", "", err)
		}
	}
}

// Close implements Store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	if err := b.db.Close(); err != nil {
		return wrapErr("close", "", fmt.Errorf("close BadgerDB: %w", err))
	}
	logging.Info().Msg("Status store closed")
	return nil
}
