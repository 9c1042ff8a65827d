// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package ingest runs the storage half of the pipeline.

Each submitted activity becomes an Item: metadata plus the raw FIT payload and
its parsed laps and samples. The Coordinator validates every payload before
scheduling anything, writes a PENDING ActivityStatus, then runs each Task of
the TaskManifest exactly once in its own goroutine.

Status is derived from task outcomes:

  - every task succeeding moves the item to COMPLETED
  - any task error or panic moves it to FAILED, and it never leaves FAILED
  - completed_tasks is incremented atomically in the status store, so
    concurrent tasks never lose an update

Tasks are independent and may finish in any order. The task that observes
completed_tasks == total_tasks performs the COMPLETED transition with a
compare-and-swap, which loses to any concurrent FAILED write.

Resubmitting an item is allowed once its previous submission is terminal,
or when its record has not been touched for longer than the stale window.

Usage:

	coord := ingest.NewCoordinator(db, statusstore.ActivityStatuses(store, opts),
	    ingest.WithEvents(publisher),
	    ingest.WithTaskTimeout(cfg.Ingest.TaskTimeout),
	)
	st, err := coord.Submit(ctx, activity, payload)
*/
package ingest
