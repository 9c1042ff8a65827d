// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
Package sync pulls a user's activities and gear from intervals.icu and
forwards every item to the ingestion boundary.

Key Components:

  - Orchestrator: admits triggers, claims the user's SyncStatus and runs syncs
  - HTTPForwarder: multipart POST to a remote ingestion service
  - LocalForwarder: direct calls into an in-process ingest.Coordinator

Run flow:

 1. Mark the status IN_PROGRESS
 2. List activities and gear concurrently
 3. Record total_items
 4. For each batch of sync.batch_size items, fetch and forward every item
    concurrently, wait for the whole batch, then persist the folded counters
 5. COMPLETED when no item failed, FAILED otherwise

Item failures are counted and logged but never abort a run. Setup failures
(the list calls, status writes) abort it and leave the status FAILED with the
cause as error_message.

Overlapping runs:

A trigger while the user's status is PENDING or IN_PROGRESS is rejected with
models.ErrSyncInProgress. The claim is a compare-and-swap on the status
record, so processes sharing a status store cannot both win. A claim left
behind by a crashed process is superseded once it is older than
sync.stale_after.

Usage Example:

	orch := sync.NewOrchestrator(cfg.Sync, syncStatuses, limiter, forwarder,
	    sync.WithProviderFactory(func(ctx context.Context) (sync.Provider, error) {
	        return provider.NewClient(cfg.Provider), nil
	    }),
	    sync.WithEvents(publisher),
	)
	if err := orch.Start(ctx); err != nil {
	    return err
	}
	defer orch.Stop()

	st, err := orch.Trigger(ctx, sync.TriggerRequest{UserID: "i12345"})
*/
package sync
