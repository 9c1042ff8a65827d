// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package database

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
	"github.com/tomtom215/stridesync/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(&config.DatabaseConfig{
		Path:      filepath.Join(t.TempDir(), "test.duckdb"),
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return db
}

var testStart = time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)

func testActivity(id string) *models.Activity {
	return &models.Activity{
		ID:               id,
		StartDate:        testStart,
		Name:             "Morning Run",
		SportType:        "Run",
		UserID:           models.Ptr("i123"),
		Duration:         models.Ptr(3600.0),
		Distance:         models.Ptr(10000.0),
		AverageHeartrate: models.Ptr(150),
	}
}

func testLaps(n int) []models.Lap {
	laps := make([]models.Lap, n)
	for i := range laps {
		laps[i] = models.Lap{
			Sequence:  i,
			StartDate: testStart.Add(time.Duration(i) * 5 * time.Minute),
			Distance:  models.Ptr(1000.0),
			Intensity: models.Ptr("active"),
		}
	}
	return laps
}

func testSamples(n int) []models.StreamSample {
	samples := make([]models.StreamSample, n)
	for i := range samples {
		samples[i] = models.StreamSample{
			Sequence:  i,
			Time:      testStart.Add(time.Duration(i) * time.Second),
			HeartRate: models.Ptr(140 + i%10),
			Speed:     models.Ptr(3.2),
		}
	}
	return samples
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) should fail")
	}
}

func TestPingAndClose(t *testing.T) {
	db, err := New(&config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "sub", "ping.duckdb")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close = %v, want ErrClosed", err)
	}
	if err := db.CreateActivity(context.Background(), testActivity("a1"), nil); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateActivity() after close = %v, want ErrClosed", err)
	}
}

func TestCreateActivity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateActivity(ctx, testActivity("a1"), []byte{0x0e, 0x10}); err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}

	got, err := db.GetActivity(ctx, "a1")
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if got.Name != "Morning Run" || got.SportType != "Run" {
		t.Errorf("got %+v", got)
	}
	if !got.StartDate.Equal(testStart) {
		t.Errorf("StartDate = %v, want %v", got.StartDate, testStart)
	}
	if got.AverageHeartrate == nil || *got.AverageHeartrate != 150 {
		t.Errorf("AverageHeartrate = %v, want 150", got.AverageHeartrate)
	}
	if got.AverageSpeed != nil {
		t.Errorf("AverageSpeed = %v, want nil for omitted field", *got.AverageSpeed)
	}

	// Re-ingest replaces the row.
	updated := testActivity("a1")
	updated.Name = "Renamed"
	updated.AverageHeartrate = nil
	if err := db.CreateActivity(ctx, updated, nil); err != nil {
		t.Fatalf("CreateActivity() upsert error = %v", err)
	}
	got, err = db.GetActivity(ctx, "a1")
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("Name = %q, want Renamed", got.Name)
	}
	if got.AverageHeartrate != nil {
		t.Errorf("AverageHeartrate = %v, want nil after upsert", *got.AverageHeartrate)
	}
}

func TestCreateActivity_RequiresID(t *testing.T) {
	db := setupTestDB(t)
	if err := db.CreateActivity(context.Background(), &models.Activity{}, nil); err == nil {
		t.Fatal("CreateActivity() without id should fail")
	}
}

func TestGetActivity_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetActivity(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetActivity() error = %v, want ErrNotFound", err)
	}
}

func TestStoreLaps_ReplacesPreviousIngest(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.StoreLaps(ctx, "a1", testLaps(5)); err != nil {
		t.Fatalf("StoreLaps() error = %v", err)
	}
	if n, err := db.CountLaps(ctx, "a1"); err != nil || n != 5 {
		t.Fatalf("CountLaps() = %d, %v; want 5", n, err)
	}

	// Idempotent replay.
	if err := db.StoreLaps(ctx, "a1", testLaps(5)); err != nil {
		t.Fatalf("StoreLaps() replay error = %v", err)
	}
	// Shorter re-ingest trims the tail.
	if err := db.StoreLaps(ctx, "a1", testLaps(3)); err != nil {
		t.Fatalf("StoreLaps() shorter error = %v", err)
	}
	if n, err := db.CountLaps(ctx, "a1"); err != nil || n != 3 {
		t.Errorf("CountLaps() = %d, %v; want 3", n, err)
	}

	if err := db.StoreLaps(ctx, "a1", nil); err != nil {
		t.Fatalf("StoreLaps(nil) error = %v", err)
	}
	if n, err := db.CountLaps(ctx, "a1"); err != nil || n != 0 {
		t.Errorf("CountLaps() = %d, %v; want 0", n, err)
	}
}

func TestStoreStreams_Chunked(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// More than one multi-row INSERT.
	count := rowsPerInsert*2 + 17
	if err := db.StoreStreams(ctx, "a1", testSamples(count)); err != nil {
		t.Fatalf("StoreStreams() error = %v", err)
	}
	if n, err := db.CountStreamSamples(ctx, "a1"); err != nil || n != count {
		t.Errorf("CountStreamSamples() = %d, %v; want %d", n, err, count)
	}
	// Other activities are untouched.
	if n, err := db.CountStreamSamples(ctx, "a2"); err != nil || n != 0 {
		t.Errorf("CountStreamSamples(a2) = %d, %v; want 0", n, err)
	}
}

func TestManifestWritesConcurrently(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 3*4)
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("a%d", i)
		wg.Add(3)
		go func() {
			defer wg.Done()
			errs <- db.CreateActivity(ctx, testActivity(id), []byte("fit"))
		}()
		go func() {
			defer wg.Done()
			errs <- db.StoreLaps(ctx, id, testLaps(4))
		}()
		go func() {
			defer wg.Done()
			errs <- db.StoreStreams(ctx, id, testSamples(50))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("concurrent write error = %v", err)
		}
	}

	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("a%d", i)
		if _, err := db.GetActivity(ctx, id); err != nil {
			t.Errorf("GetActivity(%s) error = %v", id, err)
		}
		if n, _ := db.CountLaps(ctx, id); n != 4 {
			t.Errorf("CountLaps(%s) = %d, want 4", id, n)
		}
	}
}

func TestUpsertGear(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	gear := &models.Gear{
		ID:       "g1",
		UserID:   "i123",
		Name:     "Pegasus",
		Type:     "Shoes",
		Brand:    models.Ptr("Nike"),
		Distance: models.Ptr(420000.0),
	}
	if err := db.UpsertGear(ctx, gear); err != nil {
		t.Fatalf("UpsertGear() error = %v", err)
	}

	gear.Name = "Pegasus 40"
	gear.Brand = nil
	if err := db.UpsertGear(ctx, gear); err != nil {
		t.Fatalf("UpsertGear() update error = %v", err)
	}

	got, err := db.GetGear(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGear() error = %v", err)
	}
	if got.Name != "Pegasus 40" {
		t.Errorf("Name = %q, want Pegasus 40", got.Name)
	}
	if got.Brand != nil {
		t.Errorf("Brand = %q, want nil", *got.Brand)
	}
	if got.Distance == nil || *got.Distance != 420000 {
		t.Errorf("Distance = %v, want 420000", got.Distance)
	}

	if _, err := db.GetGear(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetGear(nope) error = %v, want ErrNotFound", err)
	}
}

func TestIsTransactionConflict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("TransactionContext Error: Transaction conflict: cannot update"), true},
		{errors.New("Conflict on update!"), true},
		{errors.New("Constraint Error: NOT NULL constraint failed"), false},
	}
	for _, tt := range tests {
		if got := isTransactionConflict(tt.err); got != tt.want {
			t.Errorf("isTransactionConflict(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithConflictRetry(t *testing.T) {
	db := setupTestDB(t)
	db.retryBase = time.Microsecond
	conflict := errors.New("TransactionContext Error: Transaction conflict")

	tests := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first try", 0, nil, 1, false},
		{"recovers after conflicts", 2, conflict, 3, false},
		{"gives up after max retries", 5, conflict, 3, true},
		{"non-conflict error is not retried", 5, errors.New("Constraint Error"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := db.withConflictRetry(context.Background(), "op", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Errorf("withConflictRetry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}
