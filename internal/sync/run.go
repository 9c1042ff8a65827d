// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/models"
)

// Item kinds used in logs and metric labels.
const (
	kindActivity = "activity"
	kindGear     = "gear"
)

// finalWriteTimeout bounds the FAILED write made after the run context died.
const finalWriteTimeout = 10 * time.Second

// Run executes one sync for userID. The caller must already hold the claim
// (a PENDING status). Item failures are counted, not returned; an error
// means the run itself aborted, and the status has been set to FAILED
// before Run returns.
func (o *Orchestrator) Run(ctx context.Context, userID string, start, end time.Time) (err error) {
	ctx = logging.ContextWithUserID(ctx, userID)
	started := time.Now()
	metrics.RecordSyncStarted()

	var final models.SyncStatus
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync run panicked: %v", r)
		}
		if err != nil {
			final = o.forceFailed(ctx, userID, err)
		}
		metrics.RecordSyncFinished(time.Since(started), final.Status != models.StatusCompleted)
		o.publish(ctx, userID, final)
	}()

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	if _, err := o.update(ctx, userID, func(st *models.SyncStatus) {
		st.Status = models.StatusInProgress
		st.TotalItems, st.ProcessedItems, st.FailedItems = 0, 0, 0
		st.ErrorMessage = nil
	}); err != nil {
		return fmt.Errorf("mark sync in progress: %w", err)
	}

	provider, err := o.client(ctx)
	if err != nil {
		return err
	}

	activities, gear, err := fetchLists(ctx, provider, userID, start, end)
	if err != nil {
		return err
	}

	total := len(activities) + len(gear)
	if _, err := o.update(ctx, userID, func(st *models.SyncStatus) {
		st.TotalItems = total
	}); err != nil {
		return fmt.Errorf("record total items: %w", err)
	}
	logging.Ctx(ctx).Info().
		Int("activities", len(activities)).
		Int("gear", len(gear)).
		Msg("Sync lists fetched")

	var processed, failed int
	fold := func(ok, bad int) error {
		processed += ok
		failed += bad
		_, err := o.update(ctx, userID, func(st *models.SyncStatus) {
			st.ProcessedItems = processed
			st.FailedItems = failed
		})
		return err
	}

	for lo := 0; lo < len(activities); lo += o.batchSize {
		batch := activities[lo:min(lo+o.batchSize, len(activities))]
		ok, bad := o.runBatch(ctx, kindActivity, len(batch), func(ctx context.Context, i int) (string, error) {
			return batch[i].ID, o.syncActivity(ctx, provider, batch[i])
		})
		if err := fold(ok, bad); err != nil {
			return fmt.Errorf("persist activity batch progress: %w", err)
		}
	}

	for lo := 0; lo < len(gear); lo += o.batchSize {
		batch := gear[lo:min(lo+o.batchSize, len(gear))]
		ok, bad := o.runBatch(ctx, kindGear, len(batch), func(ctx context.Context, i int) (string, error) {
			return batch[i].ID, o.forwarder.ForwardGear(ctx, batch[i])
		})
		if err := fold(ok, bad); err != nil {
			return fmt.Errorf("persist gear batch progress: %w", err)
		}
	}

	final, err = o.update(ctx, userID, func(st *models.SyncStatus) {
		if failed == 0 {
			st.Status = models.StatusCompleted
			return
		}
		st.Fail(fmt.Sprintf("%d of %d items failed", failed, total), o.now())
	})
	if err != nil {
		return fmt.Errorf("record final sync status: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("status", final.Status.String()).
		Int("total", total).
		Int("processed", processed).
		Int("failed", failed).
		Dur("duration", time.Since(started)).
		Msg("Sync finished")
	return nil
}

// fetchLists lists activities and gear concurrently. Either failing aborts
// the run; the other call is cancelled.
func fetchLists(ctx context.Context, p Provider, userID string, start, end time.Time) ([]models.Activity, []models.Gear, error) {
	var activities []models.Activity
	var gear []models.Gear

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		activities, err = p.FetchActivities(gctx, userID, start, end)
		if err != nil {
			return fmt.Errorf("fetch activities: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		gear, err = p.FetchGear(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch gear: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return activities, gear, nil
}

// runBatch runs n items concurrently and waits for all of them. Each item
// gets its own timeout and panic recovery, so one item can neither stall
// nor crash the batch.
func (o *Orchestrator) runBatch(ctx context.Context, kind string, n int, item func(ctx context.Context, i int) (string, error)) (ok, failed int) {
	var succeeded, errored atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			itemCtx := ctx
			if o.itemTimeout > 0 {
				var cancel context.CancelFunc
				itemCtx, cancel = context.WithTimeout(ctx, o.itemTimeout)
				defer cancel()
			}

			id, err := safeItem(itemCtx, i, item)
			metrics.RecordSyncItem(kind, err == nil)
			if err != nil {
				errored.Add(1)
				logging.Ctx(logging.ContextWithItemID(ctx, id)).Warn().
					Err(err).
					Str("kind", kind).
					Msg("Sync item failed")
				return
			}
			succeeded.Add(1)
		}(i)
	}
	wg.Wait()
	return int(succeeded.Load()), int(errored.Load())
}

func safeItem(ctx context.Context, i int, item func(ctx context.Context, i int) (string, error)) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item panicked: %v", r)
		}
	}()
	return item(ctx, i)
}

func (o *Orchestrator) syncActivity(ctx context.Context, p Provider, activity models.Activity) error {
	payload, err := p.FetchPayload(ctx, activity.ID)
	if err != nil {
		return fmt.Errorf("fetch payload: %w", err)
	}
	if err := o.forwarder.ForwardActivity(ctx, activity, payload); err != nil {
		return fmt.Errorf("forward activity: %w", err)
	}
	return nil
}

// update applies mutate to the user's status with compare-and-swap and
// stamps last_updated.
func (o *Orchestrator) update(ctx context.Context, userID string, mutate func(st *models.SyncStatus)) (models.SyncStatus, error) {
	now := o.now()
	return o.statuses.Update(ctx, userID, func(cur models.SyncStatus, exists bool) (models.SyncStatus, error) {
		if !exists {
			cur = models.NewSyncStatus(now)
		}
		mutate(&cur)
		cur.LastUpdated = now.UTC()
		return cur, nil
	})
}

// forceFailed records cause as the run's error. It runs on a fresh context
// because the run context may be the reason the run failed.
func (o *Orchestrator) forceFailed(ctx context.Context, userID string, cause error) models.SyncStatus {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()

	st, err := o.update(wctx, userID, func(st *models.SyncStatus) {
		st.Fail(cause.Error(), o.now())
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).AnErr("cause", cause).Msg("Could not record FAILED sync status")
		st = models.NewSyncStatus(o.now())
		st.Fail(cause.Error(), o.now())
	}
	return st
}

func (o *Orchestrator) publish(ctx context.Context, userID string, st models.SyncStatus) {
	if o.events == nil {
		return
	}
	ev := models.SyncCompletedEvent{
		UserID:         userID,
		Status:         st.Status,
		TotalItems:     st.TotalItems,
		ProcessedItems: st.ProcessedItems,
		FailedItems:    st.FailedItems,
		ErrorMessage:   st.ErrorMessage,
		FinishedAt:     st.LastUpdated,
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := o.events.PublishSyncCompleted(pctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish sync.completed event")
	}
}
