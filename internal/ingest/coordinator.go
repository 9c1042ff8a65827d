// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/stridesync/internal/fitparse"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/statusstore"
	"github.com/tomtom215/stridesync/internal/validation"
)

var (
	// ErrItemInProgress is returned when an item is resubmitted while its
	// previous submission is still PENDING or IN_PROGRESS.
	ErrItemInProgress = errors.New("item ingestion already in progress")

	// ErrStopped is returned by Submit and SubmitBatch after Stop.
	ErrStopped = errors.New("ingestion coordinator is stopped")
)

// EventPublisher receives terminal item transitions.
type EventPublisher interface {
	PublishActivityIngested(ctx context.Context, ev models.ActivityIngestedEvent) error
}

// Coordinator validates submitted items, runs the task manifest for each one
// in the background and derives the item status from task outcomes.
type Coordinator struct {
	repo     Repository
	statuses *statusstore.Records[models.ActivityStatus]
	parser   fitparse.Parser
	manifest TaskManifest
	events   EventPublisher

	taskTimeout time.Duration
	staleAfter  time.Duration
	now         func() time.Time

	// Tasks outlive the request that scheduled them.
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithParser replaces the FIT parser.
func WithParser(p fitparse.Parser) Option {
	return func(c *Coordinator) { c.parser = p }
}

// WithManifest replaces the task manifest.
func WithManifest(m TaskManifest) Option {
	return func(c *Coordinator) { c.manifest = m }
}

// WithEvents publishes activity.ingested events to p.
func WithEvents(p EventPublisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithTaskTimeout bounds each task. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.taskTimeout = d }
}

// WithStaleAfter sets how long a non-terminal item blocks resubmission.
func WithStaleAfter(d time.Duration) Option {
	return func(c *Coordinator) { c.staleAfter = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator writing to repo and tracking items in statuses.
func NewCoordinator(repo Repository, statuses *statusstore.Records[models.ActivityStatus], opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		repo:        repo,
		statuses:    statuses,
		parser:      fitparse.Default,
		manifest:    DefaultManifest,
		taskTimeout: 5 * time.Minute,
		staleAfter:  time.Hour,
		now:         time.Now,
		baseCtx:     ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Manifest returns the task manifest in use.
func (c *Coordinator) Manifest() TaskManifest {
	return c.manifest
}

// Status returns the current ActivityStatus of an item.
func (c *Coordinator) Status(ctx context.Context, itemID string) (models.ActivityStatus, error) {
	st, _, err := c.statuses.Get(ctx, itemID)
	return st, err
}

// Submit accepts one item. The returned status is IN_PROGRESS when the
// manifest was scheduled, or FAILED with a *models.ValidationError when the
// payload is not a valid FIT activity.
func (c *Coordinator) Submit(ctx context.Context, activity models.Activity, payload []byte) (models.ActivityStatus, error) {
	release, err := c.begin()
	if err != nil {
		return models.ActivityStatus{}, err
	}
	defer release()

	if activity.ID == "" {
		metrics.RecordIngestSubmission("rejected")
		return models.ActivityStatus{}, &models.ValidationError{Field: "id", Message: "activity id is required"}
	}
	ctx = logging.ContextWithItemID(ctx, activity.ID)
	submission := submissionID("", activity.ID)

	if _, _, err := c.claim(ctx, activity.ID, submission); err != nil {
		metrics.RecordIngestSubmission("error")
		return models.ActivityStatus{}, err
	}

	item, verr := c.prepare(activity, payload)
	if verr != nil {
		metrics.RecordIngestSubmission("rejected")
		st := c.reject(ctx, activity.ID, submission, verr)
		return st, verr
	}
	item.SubmissionID = submission

	st, err := c.start(ctx, item)
	if err != nil {
		metrics.RecordIngestSubmission("error")
		return st, err
	}
	metrics.RecordIngestSubmission("accepted")
	return st, nil
}

// SubmitBatch accepts the items of one multipart request. Every payload is
// validated before any task is scheduled: if any is invalid, only the
// invalid items are recorded FAILED and a *models.ValidationError listing
// them is returned.
//
// Every item is claimed before any is started. When a claim conflicts, the
// items already claimed are recorded FAILED and their statuses are returned
// with the error.
//
// A non-empty idempotencyKey makes the request repeatable: items already
// recorded under the same key are returned as they are and nothing is
// scheduled for them again.
func (c *Coordinator) SubmitBatch(ctx context.Context, idempotencyKey string, activities []models.Activity, payloads [][]byte) ([]models.ActivityStatus, error) {
	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	if len(activities) != len(payloads) {
		metrics.RecordIngestSubmission("rejected")
		return nil, &models.ValidationError{
			Field:   "payload",
			Message: fmt.Sprintf("got %d metadata parts and %d payload parts", len(activities), len(payloads)),
		}
	}
	if len(activities) == 0 {
		metrics.RecordIngestSubmission("rejected")
		return nil, &models.ValidationError{Field: "metadata", Message: "at least one activity is required"}
	}

	seen := make(map[string]bool, len(activities))
	for _, a := range activities {
		if a.ID == "" {
			return nil, &models.ValidationError{Field: "id", Message: "activity id is required"}
		}
		if seen[a.ID] {
			return nil, &models.ValidationError{Field: "id", Items: []string{a.ID}, Message: "duplicate activity id in batch"}
		}
		seen[a.ID] = true
	}

	items := make([]*Item, len(activities))
	var invalid []int
	var invalidErrs []*models.ValidationError
	for i := range activities {
		item, verr := c.prepare(activities[i], payloads[i])
		if verr != nil {
			invalid = append(invalid, i)
			invalidErrs = append(invalidErrs, verr)
			continue
		}
		item.SubmissionID = submissionID(idempotencyKey, activities[i].ID)
		items[i] = item
	}

	if len(invalid) > 0 {
		ids := make([]string, 0, len(invalid))
		statuses := make([]models.ActivityStatus, 0, len(invalid))
		for n, i := range invalid {
			id := activities[i].ID
			ids = append(ids, id)
			submission := submissionID(idempotencyKey, id)
			itemCtx := logging.ContextWithItemID(ctx, id)
			st, replay, err := c.claim(itemCtx, id, submission)
			if err != nil {
				logging.Ctx(itemCtx).Warn().Err(err).Msg("Could not record rejected item")
				continue
			}
			if !replay {
				st = c.reject(itemCtx, id, submission, invalidErrs[n])
			}
			statuses = append(statuses, st)
		}
		metrics.RecordIngestSubmission("rejected")
		return statuses, &models.ValidationError{
			Field:   "payload",
			Items:   ids,
			Message: fmt.Sprintf("%d of %d payloads are not valid FIT activities", len(invalid), len(activities)),
		}
	}

	claimed := make([]models.ActivityStatus, len(items))
	replays := make([]bool, len(items))
	for i, item := range items {
		itemCtx := logging.ContextWithItemID(ctx, item.Activity.ID)
		st, replay, err := c.claim(itemCtx, item.Activity.ID, item.SubmissionID)
		if err != nil {
			metrics.RecordIngestSubmission("error")
			reason := fmt.Sprintf("batch rejected: %v", err)
			return c.abandon(ctx, items[:i], claimed[:i], replays[:i], reason), err
		}
		claimed[i] = st
		replays[i] = replay
	}

	out := make([]models.ActivityStatus, 0, len(items))
	for i, item := range items {
		if replays[i] {
			logging.Ctx(ctx).Debug().Str("item_id", item.Activity.ID).Msg("Repeated submission, returning recorded status")
			out = append(out, claimed[i])
			continue
		}
		itemCtx := logging.ContextWithItemID(ctx, item.Activity.ID)
		st, err := c.start(itemCtx, item)
		if err != nil {
			metrics.RecordIngestSubmission("error")
			reason := fmt.Sprintf("batch aborted: %v", err)
			return append(out, c.abandon(ctx, items[i:], claimed[i:], replays[i:], reason)...), err
		}
		out = append(out, st)
	}
	metrics.RecordIngestSubmission("accepted")
	return out, nil
}

// abandon records claimed items that will not be scheduled as FAILED and
// returns their statuses. Replayed items are returned as recorded.
func (c *Coordinator) abandon(ctx context.Context, items []*Item, claimed []models.ActivityStatus, replays []bool, reason string) []models.ActivityStatus {
	out := make([]models.ActivityStatus, 0, len(items))
	for i, item := range items {
		if replays[i] {
			out = append(out, claimed[i])
			continue
		}
		itemCtx := logging.ContextWithItemID(ctx, item.Activity.ID)
		st, changed, err := c.fail(itemCtx, item.Activity.ID, item.SubmissionID, reason)
		if err != nil {
			logging.Ctx(itemCtx).Error().Err(err).Msg("Failed to release claimed item")
			st = claimed[i]
		} else if changed {
			c.publish(itemCtx, st)
		}
		out = append(out, st)
	}
	return out
}

// UpsertGear validates and stores gear synchronously.
func (c *Coordinator) UpsertGear(ctx context.Context, gear models.Gear) error {
	if verr := validation.ValidateStruct(&gear); verr != nil {
		return verr.ToModelError()
	}
	if err := c.repo.UpsertGear(ctx, &gear); err != nil {
		return &models.StorageError{Task: "gear", ItemID: gear.ID, Err: err}
	}
	logging.Ctx(ctx).Debug().Str("gear_id", gear.ID).Msg("Gear upserted")
	return nil
}

// Wait blocks until every scheduled task has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stop rejects new submissions and drains in-flight tasks. If ctx expires
// first, running tasks are cancelled and Stop still waits for them to
// record their outcome.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return fmt.Errorf("ingest drain interrupted: %w", ctx.Err())
	}
}

// begin registers a submission with the drain group. Stop waits for it, so
// the tasks it schedules are always counted before Wait can return.
func (c *Coordinator) begin() (func(), error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stopped {
		return nil, ErrStopped
	}
	c.wg.Add(1)
	return c.wg.Done, nil
}

// submissionID derives the per-item submission ID. Without an idempotency
// key every call is a new submission.
func submissionID(key, itemID string) string {
	if key == "" {
		return uuid.NewString()
	}
	return key + ":" + itemID
}

// claim writes a fresh PENDING record owned by submission unless a live
// submission owns the item. A record already owned by submission is
// returned unchanged with replay set.
func (c *Coordinator) claim(ctx context.Context, itemID, submission string) (models.ActivityStatus, bool, error) {
	now := c.now()
	replay := false
	st, err := c.statuses.Update(ctx, itemID, func(cur models.ActivityStatus, exists bool) (models.ActivityStatus, error) {
		replay = false
		if exists && cur.SubmissionID == submission {
			replay = true
			return cur, statusstore.ErrSkipUpdate
		}
		if exists && !cur.Status.IsTerminal() && now.Sub(cur.LastUpdated) < c.staleAfter {
			return cur, fmt.Errorf("%w: %s is %s", ErrItemInProgress, itemID, cur.Status)
		}
		next := models.NewActivityStatus(itemID, c.manifest.TotalTasks(), now)
		next.SubmissionID = submission
		return next, nil
	})
	return st, replay, err
}

// prepare validates metadata and parses the payload without side effects.
func (c *Coordinator) prepare(activity models.Activity, payload []byte) (*Item, *models.ValidationError) {
	if verr := validation.ValidateStruct(&activity); verr != nil {
		me := verr.ToModelError()
		me.Items = []string{activity.ID}
		return nil, me
	}
	records, err := c.parser.Parse(payload)
	if err != nil {
		return nil, &models.ValidationError{Field: "payload", Items: []string{activity.ID}, Message: err.Error()}
	}
	if records == nil {
		records = &fitparse.Records{}
	}
	return &Item{Activity: activity, Payload: payload, Records: records}, nil
}

// reject records a validation failure. No task was scheduled, so
// completed_tasks stays 0.
func (c *Coordinator) reject(ctx context.Context, itemID, submission string, verr *models.ValidationError) models.ActivityStatus {
	logging.Ctx(ctx).Warn().Str("reason", verr.Message).Msg("Rejected invalid payload")
	st, changed, err := c.fail(ctx, itemID, submission, verr.Error())
	if err != nil {
		now := c.now()
		st = models.NewActivityStatus(itemID, c.manifest.TotalTasks(), now)
		st.SubmissionID = submission
		st.Fail(verr.Error(), now)
	}
	if changed {
		c.publish(ctx, st)
	}
	return st
}

// start moves the item to IN_PROGRESS and schedules every task once.
func (c *Coordinator) start(ctx context.Context, item *Item) (models.ActivityStatus, error) {
	now := c.now()
	st, err := c.statuses.Update(ctx, item.Activity.ID, func(cur models.ActivityStatus, exists bool) (models.ActivityStatus, error) {
		if !exists {
			return cur, fmt.Errorf("activity status for %s disappeared before scheduling", item.Activity.ID)
		}
		if cur.SubmissionID != item.SubmissionID {
			return cur, fmt.Errorf("%w: %s was claimed by another submission", ErrItemInProgress, item.Activity.ID)
		}
		if !cur.Status.CanTransition(models.StatusInProgress) {
			return cur, fmt.Errorf("%w: %s is %s", ErrItemInProgress, item.Activity.ID, cur.Status)
		}
		cur.Status = models.StatusInProgress
		cur.LastUpdated = now.UTC()
		return cur, nil
	})
	if err != nil {
		return st, err
	}

	for _, task := range c.manifest {
		c.wg.Add(1)
		go c.runTask(task, item)
	}
	logging.Ctx(ctx).Info().
		Int("tasks", c.manifest.TotalTasks()).
		Int("laps", len(item.Records.Laps)).
		Int("samples", len(item.Records.Samples)).
		Msg("Item accepted, tasks scheduled")
	return st, nil
}

func (c *Coordinator) runTask(task Task, item *Item) {
	defer c.wg.Done()
	metrics.IngestInFlightTasks.Inc()
	defer metrics.IngestInFlightTasks.Dec()

	itemID := item.Activity.ID
	ctx := logging.ContextWithItemID(c.baseCtx, itemID)
	runCtx := ctx
	if c.taskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeRun(runCtx, task, c.repo, item)
	metrics.RecordIngestTask(task.Name, time.Since(start), err)

	if err != nil {
		serr := &models.StorageError{Task: task.Name, ItemID: itemID, Err: err}
		logging.Ctx(ctx).Error().Err(serr).Str("task", task.Name).Msg("Ingest task failed")
		if st, changed, ferr := c.fail(ctx, itemID, item.SubmissionID, serr.Error()); ferr != nil {
			logging.Ctx(ctx).Error().Err(ferr).Msg("Failed to record task failure")
		} else if changed {
			c.publish(ctx, st)
		}
		return
	}
	c.completeTask(ctx, item, task.Name)
}

// safeRun turns a task panic into an error so the item still reaches FAILED.
func safeRun(ctx context.Context, task Task, repo Repository, item *Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	return task.Run(ctx, repo, item)
}

// completeTask bumps completed_tasks atomically; the task that observes the
// final count promotes the item to COMPLETED unless it already failed.
// The increment is keyed by submission and task, so a retried write after a
// lost reply never counts the task twice.
func (c *Coordinator) completeTask(ctx context.Context, item *Item, taskName string) {
	itemID := item.Activity.ID
	total := int64(c.manifest.TotalTasks())
	n, err := c.statuses.Increment(ctx, itemID, statusstore.Increment{
		Field: "completed_tasks",
		Delta: 1,
		Token: item.SubmissionID + ":" + taskName,
		Limit: total,
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("task", taskName).Msg("Failed to record task completion")
		msg := fmt.Sprintf("task %s completed but its progress could not be recorded: %v", taskName, err)
		if st, changed, ferr := c.fail(ctx, itemID, item.SubmissionID, msg); ferr != nil {
			logging.Ctx(ctx).Error().Err(ferr).Msg("Final FAILED write failed, item status is stale")
		} else if changed {
			c.publish(ctx, st)
		}
		return
	}
	logging.Ctx(ctx).Debug().Str("task", taskName).Int64("completed_tasks", n).Msg("Task completed")

	if n < total {
		return
	}

	now := c.now()
	promoted := false
	st, err := c.statuses.Update(ctx, itemID, func(cur models.ActivityStatus, exists bool) (models.ActivityStatus, error) {
		promoted = false
		if !exists || cur.SubmissionID != item.SubmissionID ||
			cur.Status != models.StatusInProgress || cur.CompletedTasks != cur.TotalTasks {
			return cur, statusstore.ErrSkipUpdate
		}
		cur.Status = models.StatusCompleted
		cur.LastUpdated = now.UTC()
		promoted = true
		return cur, nil
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to promote item to COMPLETED")
		if fst, changed, ferr := c.fail(ctx, itemID, item.SubmissionID, "completion could not be recorded: "+err.Error()); ferr == nil && changed {
			c.publish(ctx, fst)
		}
		return
	}
	if promoted && st.Status == models.StatusCompleted {
		logging.Ctx(ctx).Info().Msg("Item ingested")
		c.publish(ctx, st)
	}
}

// fail moves the item to FAILED unless it is already terminal or now belongs
// to a different submission. It reports whether this call made the
// transition.
func (c *Coordinator) fail(ctx context.Context, itemID, submission, msg string) (models.ActivityStatus, bool, error) {
	now := c.now()
	changed := false
	st, err := c.statuses.Update(ctx, itemID, func(cur models.ActivityStatus, exists bool) (models.ActivityStatus, error) {
		changed = false
		if !exists {
			cur = models.NewActivityStatus(itemID, c.manifest.TotalTasks(), now)
			cur.SubmissionID = submission
		}
		if cur.SubmissionID != submission {
			return cur, statusstore.ErrSkipUpdate
		}
		if !cur.Fail(msg, now) {
			return cur, statusstore.ErrSkipUpdate
		}
		changed = true
		return cur, nil
	})
	if err != nil {
		return st, false, err
	}
	return st, changed && st.Status == models.StatusFailed, nil
}

func (c *Coordinator) publish(ctx context.Context, st models.ActivityStatus) {
	if c.events == nil {
		return
	}
	ev := models.ActivityIngestedEvent{
		ItemID:       st.ItemID,
		Status:       st.Status,
		ErrorMessage: st.ErrorMessage,
		FinishedAt:   st.LastUpdated,
	}
	if err := c.events.PublishActivityIngested(ctx, ev); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to publish activity.ingested event")
	}
}
