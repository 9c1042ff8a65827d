// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package statusstore holds the durable progress records shared by the sync and
ingestion halves of the pipeline.

Two layers are provided:

  - Store: a byte-level versioned key/value contract with compare-and-swap,
    atomic JSON field increment, and a TTL'd window counter
  - Records[T]: a typed view that encodes with goccy/go-json, runs Validate on
    every read and write, and implements read-modify-write as a CAS loop

# Backends

  - memory: mutex-guarded map; tests and single-process deployments
  - badger: embedded BadgerDB v4; transactions retried on ErrConflict
  - redis: go-redis v9; WATCH/MULTI for CAS, Lua for field increments

# Concurrency

No caller ever writes a status with a blind read-modify-write. Concurrent
updates to one record serialize through Update:

	st, err := syncs.Update(ctx, userID, func(cur models.SyncStatus, exists bool) (models.SyncStatus, error) {
	    cur.ProcessedItems += okCount
	    cur.FailedItems += failCount
	    return cur, nil
	})

Every failure is returned as *StoreError. ErrNotFound and ErrVersionConflict
are matched with errors.Is.
*/
package statusstore
