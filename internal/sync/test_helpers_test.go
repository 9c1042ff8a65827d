// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/models"
	"github.com/tomtom215/stridesync/internal/ratelimit"
	"github.com/tomtom215/stridesync/internal/statusstore"
)

// newTestSyncConfig keeps batches small and timeouts short.
func newTestSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		BatchSize:       2,
		ItemTimeout:     5 * time.Second,
		RunTimeout:      30 * time.Second,
		StaleAfter:      time.Hour,
		DefaultLookback: 7 * 24 * time.Hour,
	}
}

func ratelimitConfig(requests int) config.RateLimitConfig {
	return config.RateLimitConfig{Requests: requests, Window: time.Minute}
}

// mockProvider serves fixed lists and payloads.
type mockProvider struct {
	mu         sync.Mutex
	activities []models.Activity
	gear       []models.Gear
	payloads   map[string][]byte
	listErr    error
	gearErr    error
	gate       chan struct{} // blocks FetchActivities until closed
	closed     int
	payloadHit int
}

func (m *mockProvider) FetchActivities(ctx context.Context, _ string, _, _ time.Time) ([]models.Activity, error) {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activities, m.listErr
}

func (m *mockProvider) FetchGear(_ context.Context, _ string) ([]models.Gear, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gear, m.gearErr
}

func (m *mockProvider) FetchPayload(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloadHit++
	p, ok := m.payloads[id]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", id)
	}
	return p, nil
}

func (m *mockProvider) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

// mockForwarder records forwarded items and tracks peak concurrency.
type mockForwarder struct {
	mu        sync.Mutex
	forwarded []string
	failIDs   map[string]bool
	panicID   string
	inFlight  int
	peak      int
	delay     time.Duration
}

func (m *mockForwarder) enter(id string) error {
	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	m.mu.Unlock()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
	if id == m.panicID {
		panic("forwarder exploded")
	}
	if m.failIDs[id] {
		return errors.New("ingestion rejected " + id)
	}
	m.forwarded = append(m.forwarded, id)
	return nil
}

func (m *mockForwarder) ForwardActivity(_ context.Context, a models.Activity, _ []byte) error {
	return m.enter(a.ID)
}

func (m *mockForwarder) ForwardGear(_ context.Context, g models.Gear) error {
	return m.enter(g.ID)
}

// recordingEvents collects sync.completed events.
type recordingEvents struct {
	mu     sync.Mutex
	events []models.SyncCompletedEvent
}

func (r *recordingEvents) PublishSyncCompleted(_ context.Context, ev models.SyncCompletedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) all() []models.SyncCompletedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SyncCompletedEvent(nil), r.events...)
}

// stubLimiter admits or rejects every call.
type stubLimiter struct {
	allow bool
	err   error
}

func (s stubLimiter) Acquire(context.Context, string) (bool, error) { return s.allow, s.err }
func (s stubLimiter) RetryAfter() time.Duration { return 30 * time.Second }

type testEnv struct {
	orch     *Orchestrator
	provider *mockProvider
	events   *recordingEvents
	statuses *statusstore.Records[models.SyncStatus]
	store    *statusstore.MemoryStore
}

// newTestEnv builds a started orchestrator over a memory store. limiter may
// be nil for a generous real limiter.
func newTestEnv(t *testing.T, p *mockProvider, fwd Forwarder, limiter RateLimiter, opts ...Option) *testEnv {
	t.Helper()
	store := statusstore.NewMemoryStore()
	statuses := statusstore.SyncStatuses(store, statusstore.RecordsOptions{CASAttempts: 32})
	if limiter == nil {
		limiter = ratelimit.New(store, ratelimitConfig(100))
	}
	events := &recordingEvents{}
	opts = append([]Option{WithProvider(p), WithEvents(events)}, opts...)

	orch := NewOrchestrator(newTestSyncConfig(), statuses, limiter, fwd, opts...)
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = orch.Stop() })
	return &testEnv{orch: orch, provider: p, events: events, statuses: statuses, store: store}
}

func activities(ids ...string) []models.Activity {
	out := make([]models.Activity, len(ids))
	for i, id := range ids {
		out[i] = models.Activity{ID: id, Name: "Ride " + id, SportType: "Ride", StartDate: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)}
	}
	return out
}

func payloadsFor(ids ...string) map[string][]byte {
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		out[id] = []byte("fit-" + id)
	}
	return out
}

func (e *testEnv) status(t *testing.T, userID string) models.SyncStatus {
	t.Helper()
	st, err := e.orch.Status(context.Background(), userID)
	if err != nil {
		t.Fatalf("Status(%s) error = %v", userID, err)
	}
	return st
}
