// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package statusstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stridesync/internal/models"
)

// flakyStore fails the first n Get calls.
type flakyStore struct {
	Store
	mu       sync.Mutex
	failGets int
	gets     int
}

func (f *flakyStore) Get(ctx context.Context, key string) (Entry, error) {
	f.mu.Lock()
	f.gets++
	fail := f.gets <= f.failGets
	f.mu.Unlock()
	if fail {
		return Entry{}, wrapErr("get", key, errors.New("connection reset"))
	}
	return f.Store.Get(ctx, key)
}

func TestRecordsCreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncs := SyncStatuses(NewMemoryStore(), RecordsOptions{})

	st := models.NewSyncStatus(time.Now())
	if _, err := syncs.Create(ctx, "u1", st); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := syncs.Create(ctx, "u1", st); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("second Create: expected conflict, got %v", err)
	}

	got, version, err := syncs.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusPending || version != 1 {
		t.Errorf("Get = %+v@%d", got, version)
	}
}

func TestRecordsRejectInvalidWrite(t *testing.T) {
	t.Parallel()

	syncs := SyncStatuses(NewMemoryStore(), RecordsOptions{WriteRetries: 3})
	bad := models.SyncStatus{Status: models.StatusInProgress, TotalItems: 1, ProcessedItems: 2}

	_, err := syncs.Put(context.Background(), "u1", bad)
	var verr *models.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "validate" {
		t.Errorf("expected validate StoreError, got %v", err)
	}
}

func TestRecordsRejectInvalidRead(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.Set(ctx, models.SyncStatusKey("u1"), []byte(`{"status":"paused"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	_, _, err := SyncStatuses(store, RecordsOptions{}).Get(ctx, "u1")
	if err == nil {
		t.Fatal("expected malformed record to be rejected on read")
	}
}

func TestRecordsUpdateConcurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncs := SyncStatuses(NewMemoryStore(), RecordsOptions{CASAttempts: 100})
	if _, err := syncs.Create(ctx, "u1", models.SyncStatus{Status: models.StatusInProgress, TotalItems: 50}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := syncs.Update(ctx, "u1", func(cur models.SyncStatus, _ bool) (models.SyncStatus, error) {
				cur.ProcessedItems++
				return cur, nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _, err := syncs.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ProcessedItems != 50 {
		t.Errorf("ProcessedItems = %d, want 50 (lost updates)", got.ProcessedItems)
	}
}

func TestRecordsUpdateSkip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	items := ActivityStatuses(NewMemoryStore(), RecordsOptions{})
	failed := models.ActivityStatus{ItemID: "a1", Status: models.StatusFailed, TotalTasks: 3}
	if _, err := items.Create(ctx, "a1", failed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := items.Update(ctx, "a1", func(cur models.ActivityStatus, _ bool) (models.ActivityStatus, error) {
		if cur.Status.IsTerminal() {
			return cur, ErrSkipUpdate
		}
		cur.Status = models.StatusCompleted
		return cur, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", got.Status)
	}
	_, version, _ := items.Get(ctx, "a1")
	if version != 1 {
		t.Errorf("skipped update should not write, version = %d", version)
	}
}

func TestRecordsUpdateMissing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	syncs := SyncStatuses(NewMemoryStore(), RecordsOptions{})
	got, err := syncs.Update(ctx, "new", func(cur models.SyncStatus, exists bool) (models.SyncStatus, error) {
		if exists {
			t.Error("expected exists=false")
		}
		return models.NewSyncStatus(time.Now()), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != models.StatusPending {
		t.Errorf("status = %s", got.Status)
	}
}

func TestRecordsRetryStoreFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := NewMemoryStore()
	if _, err := mem.Set(ctx, models.SyncStatusKey("u1"), []byte(`{"status":"pending","total_items":0,"processed_items":0,"failed_items":0,"error_message":null,"last_updated":"2026-01-01T00:00:00Z"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	t.Run("recovers within budget", func(t *testing.T) {
		flaky := &flakyStore{Store: mem, failGets: 2}
		syncs := SyncStatuses(flaky, RecordsOptions{WriteRetries: 2, WriteRetryDelay: time.Millisecond})
		if _, _, err := syncs.Get(ctx, "u1"); err != nil {
			t.Fatalf("Get: %v", err)
		}
		if flaky.gets != 3 {
			t.Errorf("gets = %d, want 3", flaky.gets)
		}
	})

	t.Run("surfaces after budget", func(t *testing.T) {
		flaky := &flakyStore{Store: mem, failGets: 10}
		syncs := SyncStatuses(flaky, RecordsOptions{WriteRetries: 2, WriteRetryDelay: time.Millisecond})
		_, _, err := syncs.Get(ctx, "u1")
		if !IsUnavailable(err) {
			t.Fatalf("expected unavailable error, got %v", err)
		}
		if flaky.gets != 3 {
			t.Errorf("gets = %d, want 3", flaky.gets)
		}
	})
}

func TestRecordsIncrement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	items := ActivityStatuses(newBadgerForTest(t), RecordsOptions{TTL: time.Hour})
	if _, err := items.Create(ctx, "a1", models.NewActivityStatus("a1", 3, time.Now())); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for want := int64(1); want <= 3; want++ {
		n, err := items.Increment(ctx, "a1", Increment{Field: "completed_tasks", Delta: 1, Limit: 3})
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != want {
			t.Errorf("Increment = %d, want %d", n, want)
		}
	}
	got, _, err := items.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.CompletedTasks != 3 {
		t.Errorf("CompletedTasks = %d", got.CompletedTasks)
	}
}

// lossyStore applies IncrementField and then reports a transport failure,
// like a reply lost after the store committed.
type lossyStore struct {
	Store
	mu    sync.Mutex
	calls int
	lose  int
}

func (l *lossyStore) IncrementField(ctx context.Context, key string, inc Increment) (int64, error) {
	n, err := l.Store.IncrementField(ctx, key, inc)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if err == nil && l.calls <= l.lose {
		return 0, wrapErr("increment", key, errors.New("i/o timeout"))
	}
	return n, err
}

func TestRecordsIncrementLostReply(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := RecordsOptions{WriteRetries: 3, WriteRetryDelay: time.Millisecond}

	t.Run("tokened increment is retried once applied", func(t *testing.T) {
		lossy := &lossyStore{Store: NewMemoryStore(), lose: 1}
		items := ActivityStatuses(lossy, opts)
		if _, err := items.Create(ctx, "a1", models.NewActivityStatus("a1", 3, time.Now())); err != nil {
			t.Fatalf("Create: %v", err)
		}
		n, err := items.Increment(ctx, "a1", Increment{Field: "completed_tasks", Delta: 1, Token: "s1:metadata", Limit: 3})
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if n != 1 {
			t.Errorf("Increment = %d, want 1", n)
		}
		if lossy.calls != 2 {
			t.Errorf("calls = %d, want 2", lossy.calls)
		}
	})

	t.Run("untokened increment is not retried", func(t *testing.T) {
		lossy := &lossyStore{Store: NewMemoryStore(), lose: 1}
		items := ActivityStatuses(lossy, opts)
		if _, err := items.Create(ctx, "a1", models.NewActivityStatus("a1", 3, time.Now())); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if _, err := items.Increment(ctx, "a1", Increment{Field: "completed_tasks", Delta: 1}); !IsUnavailable(err) {
			t.Fatalf("expected the lost reply to surface, got %v", err)
		}
		got, _, err := items.Get(ctx, "a1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.CompletedTasks != 1 || lossy.calls != 1 {
			t.Errorf("CompletedTasks = %d after %d calls, want 1 after 1", got.CompletedTasks, lossy.calls)
		}
	})
}

// newBadgerForTest opens a badger store in a temp dir closed at cleanup.
func newBadgerForTest(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadger(BadgerOptions{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
