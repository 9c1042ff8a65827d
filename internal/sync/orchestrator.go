// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

/*
orchestrator.go - Sync Orchestrator Lifecycle and Triggering

This file contains the Orchestrator struct, its construction, the
Start/Stop lifecycle and Trigger, the request-path entry point that claims a
user's sync and hands the run to a background goroutine.

Lifecycle Methods:
  - NewOrchestrator(): wire status records, limiter and forwarder
  - Start(): accept triggers
  - Stop(): refuse triggers, drain in-flight runs, release the provider client
  - Trigger(): rate limit, claim, and start a run
  - Status(): read a user's SyncStatus

Thread Safety:
  - mu: protects running and the lazily created provider client
  - wg: tracks background runs so Stop can drain them
  - cross-process overlap is prevented by the CAS claim on the status record
*/

//nolint:staticcheck // File documentation, not package doc
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/logging"
	"github.com/tomtom215/stridesync/internal/metrics"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/statusstore"
)

// ErrNotRunning is returned by Trigger before Start or after Stop.
var ErrNotRunning = errors.New("sync orchestrator is not running")

// Provider is the upstream activity source.
type Provider interface {
	FetchActivities(ctx context.Context, userID string, start, end time.Time) ([]models.Activity, error)
	FetchGear(ctx context.Context, userID string) ([]models.Gear, error)
	FetchPayload(ctx context.Context, activityID string) ([]byte, error)
	Close()
}

// Forwarder hands items to the ingestion boundary.
type Forwarder interface {
	ForwardActivity(ctx context.Context, activity models.Activity, payload []byte) error
	ForwardGear(ctx context.Context, gear models.Gear) error
}

// RateLimiter admits sync triggers per user.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (bool, error)
	RetryAfter() time.Duration
}

// EventPublisher receives terminal run transitions.
type EventPublisher interface {
	PublishSyncCompleted(ctx context.Context, ev models.SyncCompletedEvent) error
}

// TriggerRequest is a validated sync request. Zero dates fall back to the
// configured lookback ending now.
type TriggerRequest struct {
	UserID    string
	StartDate time.Time
	EndDate   time.Time
}

// Orchestrator runs one user's sync: list activities and gear, then fetch
// and forward every item in bounded concurrent batches while keeping the
// user's SyncStatus current.
type Orchestrator struct {
	statuses  *statusstore.Records[models.SyncStatus]
	limiter   RateLimiter
	forwarder Forwarder
	events    EventPublisher

	newProvider func(ctx context.Context) (Provider, error)
	provider    Provider

	batchSize       int
	itemTimeout     time.Duration
	runTimeout      time.Duration
	staleAfter      time.Duration
	defaultLookback time.Duration
	stopGrace       time.Duration
	now             func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider uses p instead of building a client on first use.
func WithProvider(p Provider) Option {
	return func(o *Orchestrator) {
		o.newProvider = func(context.Context) (Provider, error) { return p, nil }
	}
}

// WithProviderFactory sets how the provider client is built on first use.
// A factory error fails the run that needed the client; the next run tries
// again.
func WithProviderFactory(fn func(ctx context.Context) (Provider, error)) Option {
	return func(o *Orchestrator) { o.newProvider = fn }
}

// WithEvents publishes sync.completed events to p.
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithStopGrace sets how long Stop waits for in-flight runs before
// cancelling them.
func WithStopGrace(d time.Duration) Option {
	return func(o *Orchestrator) { o.stopGrace = d }
}

// NewOrchestrator creates an orchestrator. Call Start before Trigger.
func NewOrchestrator(cfg config.SyncConfig, statuses *statusstore.Records[models.SyncStatus], limiter RateLimiter, forwarder Forwarder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		statuses:        statuses,
		limiter:         limiter,
		forwarder:       forwarder,
		batchSize:       cfg.BatchSize,
		itemTimeout:     cfg.ItemTimeout,
		runTimeout:      cfg.RunTimeout,
		staleAfter:      cfg.StaleAfter,
		defaultLookback: cfg.DefaultLookback,
		stopGrace:       30 * time.Second,
		now:             time.Now,
	}
	if o.batchSize < 1 {
		o.batchSize = 50
	}
	if o.staleAfter <= 0 {
		o.staleAfter = time.Hour
	}
	if o.defaultLookback <= 0 {
		o.defaultLookback = 30 * 24 * time.Hour
	}
	for _, opt := range opts {
		opt(o)
	}

	logging.Info().
		Int("batch_size", o.batchSize).
		Dur("item_timeout", o.itemTimeout).
		Dur("run_timeout", o.runTimeout).
		Dur("stale_after", o.staleAfter).
		Msg("Sync orchestrator config loaded")
	return o
}

// Start begins accepting triggers. Runs are detached from ctx; Stop ends them.
func (o *Orchestrator) Start(_ context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return fmt.Errorf("sync orchestrator is already running")
	}
	o.baseCtx, o.cancel = context.WithCancel(context.Background())
	o.running = true
	logging.Info().Msg("Sync orchestrator started")
	return nil
}

// Stop refuses new triggers and waits for in-flight runs. Runs still going
// after the stop grace period are cancelled; each still records FAILED
// before Stop returns. The provider client is released last.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("sync orchestrator is not running")
	}
	o.running = false
	o.mu.Unlock()

	logging.Info().Msg("Stopping sync orchestrator...")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(o.stopGrace):
		logging.Warn().Dur("grace", o.stopGrace).Msg("Sync runs still active after grace period, cancelling")
		o.cancel()
		<-done
	}
	o.cancel()

	o.mu.Lock()
	if o.provider != nil {
		o.provider.Close()
		o.provider = nil
	}
	o.mu.Unlock()

	logging.Info().Msg("Sync orchestrator stopped")
	return nil
}

// Wait blocks until every background run has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// RetryAfter reports when a rate-limited user may try again.
func (o *Orchestrator) RetryAfter() time.Duration {
	return o.limiter.RetryAfter()
}

// Status returns a user's SyncStatus, or statusstore.ErrNotFound.
func (o *Orchestrator) Status(ctx context.Context, userID string) (models.SyncStatus, error) {
	st, _, err := o.statuses.Get(ctx, userID)
	return st, err
}

// Trigger admits and claims a sync for req.UserID and starts it in the
// background. It returns the PENDING status the caller should report.
//
// Errors:
//   - models.ErrRateLimitExceeded when the user exhausted the window
//   - models.ErrSyncInProgress when a live run already holds the claim
//   - a status store error when admission or the claim could not be recorded
func (o *Orchestrator) Trigger(ctx context.Context, req TriggerRequest) (models.SyncStatus, error) {
	// Registering with wg under mu means Stop either refuses this trigger or
	// waits for its run.
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return models.SyncStatus{}, ErrNotRunning
	}
	o.wg.Add(1)
	baseCtx := o.baseCtx
	o.mu.Unlock()

	handedOff := false
	defer func() {
		if !handedOff {
			o.wg.Done()
		}
	}()
	ctx = logging.ContextWithUserID(ctx, req.UserID)

	allowed, err := o.limiter.Acquire(ctx, req.UserID)
	if err != nil {
		metrics.RecordSyncRejected()
		return models.SyncStatus{}, fmt.Errorf("acquire rate limit: %w", err)
	}
	if !allowed {
		metrics.RecordSyncRejected()
		logging.Ctx(ctx).Info().Msg("Sync trigger rate limited")
		return models.SyncStatus{}, models.ErrRateLimitExceeded
	}

	st, err := o.claim(ctx, req.UserID)
	if err != nil {
		metrics.RecordSyncRejected()
		return models.SyncStatus{}, err
	}

	start, end := o.resolveRange(req.StartDate, req.EndDate)

	// The run must outlive the HTTP request, so it gets the base context
	// plus the correlation values of the triggering request.
	runCtx := logging.ContextWithUserID(baseCtx, req.UserID)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		runCtx = logging.ContextWithCorrelationID(runCtx, id)
	}
	if id := logging.RequestIDFromContext(ctx); id != "" {
		runCtx = logging.ContextWithRequestID(runCtx, id)
	}

	handedOff = true
	go func() {
		defer o.wg.Done()
		if err := o.Run(runCtx, req.UserID, start, end); err != nil {
			logging.Ctx(runCtx).Error().Err(err).Msg("Sync run failed")
		}
	}()

	logging.Ctx(ctx).Info().
		Time("start_date", start).
		Time("end_date", end).
		Msg("Sync triggered")
	return st, nil
}

// claim writes a fresh PENDING record unless a live run owns the user.
// IN_PROGRESS or PENDING records untouched for staleAfter are superseded.
func (o *Orchestrator) claim(ctx context.Context, userID string) (models.SyncStatus, error) {
	now := o.now()
	return o.statuses.Update(ctx, userID, func(cur models.SyncStatus, exists bool) (models.SyncStatus, error) {
		if exists && !cur.Status.IsTerminal() {
			if age := now.Sub(cur.LastUpdated); age < o.staleAfter {
				return cur, fmt.Errorf("%w: user %s is %s", models.ErrSyncInProgress, userID, cur.Status)
			}
			logging.Ctx(ctx).Warn().
				Str("status", cur.Status.String()).
				Time("last_updated", cur.LastUpdated).
				Msg("Superseding stale sync claim")
		}
		return models.NewSyncStatus(now), nil
	})
}

func (o *Orchestrator) resolveRange(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = o.now().UTC()
	}
	if start.IsZero() {
		start = end.Add(-o.defaultLookback)
	}
	return start, end
}

// client returns the provider client, creating it on first use.
func (o *Orchestrator) client(ctx context.Context) (Provider, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.provider == nil {
		if o.newProvider == nil {
			return nil, errors.New("no provider client configured")
		}
		p, err := o.newProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("build provider client: %w", err)
		}
		o.provider = p
	}
	return o.provider, nil
}
