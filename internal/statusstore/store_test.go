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
)

// storeFactory builds a fresh store for one subtest.
type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			t.Helper()
			return NewMemoryStore()
		},
		"badger": func(t *testing.T) Store {
			t.Helper()
			s, err := OpenBadger(BadgerOptions{Path: t.TempDir()})
			if err != nil {
				t.Fatalf("OpenBadger: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, factory)
		})
	}
}

// runStoreContract exercises the Store contract. It is shared with the
// redis integration test.
func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		s := factory(t)
		_, err := s.Get(ctx, "nope")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		var se *StoreError
		if !errors.As(err, &se) || se.Op != "get" {
			t.Errorf("expected *StoreError{Op: get}, got %#v", err)
		}
	})

	t.Run("set bumps version", func(t *testing.T) {
		s := factory(t)
		v1, err := s.Set(ctx, "k", []byte(`{"a":1}`), 0)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
		v2, err := s.Set(ctx, "k", []byte(`{"a":2}`), 0)
		if err != nil {
			t.Fatalf("Set: %v", err)
		}
		if v1 != 1 || v2 != 2 {
			t.Errorf("versions = %d, %d; want 1, 2", v1, v2)
		}
		e, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(e.Value) != `{"a":2}` || e.Version != 2 {
			t.Errorf("Get = %s@%d", e.Value, e.Version)
		}
	})

	t.Run("cas from absent", func(t *testing.T) {
		s := factory(t)
		if _, err := s.CompareAndSwap(ctx, "k", 0, []byte(`{}`), 0); err != nil {
			t.Fatalf("first create: %v", err)
		}
		_, err := s.CompareAndSwap(ctx, "k", 0, []byte(`{}`), 0)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("second create: expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("cas stale version", func(t *testing.T) {
		s := factory(t)
		v, _ := s.Set(ctx, "k", []byte(`{}`), 0)
		if _, err := s.CompareAndSwap(ctx, "k", v, []byte(`{"x":1}`), 0); err != nil {
			t.Fatalf("cas current: %v", err)
		}
		if _, err := s.CompareAndSwap(ctx, "k", v, []byte(`{"x":2}`), 0); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("cas stale: expected conflict, got %v", err)
		}
	})

	t.Run("increment field", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Set(ctx, "k", []byte(`{"item_id":"a1","completed_tasks":0,"error_message":null}`), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.IncrementField(ctx, "k", Increment{Field: "completed_tasks", Delta: 1}); err != nil {
					t.Errorf("IncrementField: %v", err)
				}
			}()
		}
		wg.Wait()
		n, err := s.IncrementField(ctx, "k", Increment{Field: "completed_tasks"})
		if err != nil {
			t.Fatalf("IncrementField: %v", err)
		}
		if n != 3 {
			t.Errorf("completed_tasks = %d, want 3", n)
		}
		e, _ := s.Get(ctx, "k")
		if e.Version != 5 {
			t.Errorf("version = %d, want 5 (set + 4 increments)", e.Version)
		}
	})

	t.Run("increment missing", func(t *testing.T) {
		s := factory(t)
		if _, err := s.IncrementField(ctx, "nope", Increment{Field: "n", Delta: 1}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("increment token applies once", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Set(ctx, "k", []byte(`{"completed_tasks":0}`), time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}
		inc := Increment{Field: "completed_tasks", Delta: 1, Token: "sub-1:laps"}
		for i := 0; i < 3; i++ {
			n, err := s.IncrementField(ctx, "k", inc)
			if err != nil {
				t.Fatalf("IncrementField #%d: %v", i, err)
			}
			if n != 1 {
				t.Errorf("IncrementField #%d = %d, want 1", i, n)
			}
		}

		// A rewrite of the document keeps the token.
		e, _ := s.Get(ctx, "k")
		if _, err := s.CompareAndSwap(ctx, "k", e.Version, []byte(`{"completed_tasks":1,"status":"in_progress"}`), time.Hour); err != nil {
			t.Fatalf("CompareAndSwap: %v", err)
		}
		if n, err := s.IncrementField(ctx, "k", inc); err != nil || n != 1 {
			t.Errorf("after rewrite = %d, %v; want 1, nil", n, err)
		}

		n, err := s.IncrementField(ctx, "k", Increment{Field: "completed_tasks", Delta: 1, Token: "sub-1:stream"})
		if err != nil || n != 2 {
			t.Errorf("second token = %d, %v; want 2, nil", n, err)
		}
	})

	t.Run("increment limit", func(t *testing.T) {
		s := factory(t)
		if _, err := s.Set(ctx, "k", []byte(`{"completed_tasks":2}`), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		before, _ := s.Get(ctx, "k")
		_, err := s.IncrementField(ctx, "k", Increment{Field: "completed_tasks", Delta: 1, Limit: 2})
		if !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}
		after, _ := s.Get(ctx, "k")
		if after.Version != before.Version {
			t.Errorf("version moved from %d to %d on a rejected increment", before.Version, after.Version)
		}
	})

	t.Run("window counter", func(t *testing.T) {
		s := factory(t)
		for want := int64(1); want <= 3; want++ {
			got, err := s.IncrWindow(ctx, "ratelimit:u:1", time.Minute)
			if err != nil {
				t.Fatalf("IncrWindow: %v", err)
			}
			if got != want {
				t.Errorf("IncrWindow = %d, want %d", got, want)
			}
		}
	})

	t.Run("ping and close", func(t *testing.T) {
		s := factory(t)
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("Ping: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := s.Set(ctx, "k", []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.IncrWindow(ctx, "w", time.Minute); err != nil {
		t.Fatalf("IncrWindow: %v", err)
	}

	now = now.Add(61 * time.Second)

	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired record, got %v", err)
	}
	n, err := s.IncrWindow(ctx, "w", time.Minute)
	if err != nil {
		t.Fatalf("IncrWindow: %v", err)
	}
	if n != 1 {
		t.Errorf("window counter should restart at 1, got %d", n)
	}
	// An expired key can be created again with version 0.
	if _, err := s.CompareAndSwap(ctx, "k", 0, []byte(`{}`), 0); err != nil {
		t.Errorf("CAS after expiry: %v", err)
	}
}

func TestIncrementJSONField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		limit   int64
		want    int64
		wantErr bool
	}{
		{"existing", `{"n":2,"s":"x"}`, 0, 3, false},
		{"absent", `{"s":"x"}`, 0, 1, false},
		{"null", `{"n":null}`, 0, 1, false},
		{"reaches limit", `{"n":2}`, 3, 3, false},
		{"past limit", `{"n":3}`, 3, 0, true},
		{"not integer", `{"n":"two"}`, 0, 0, true},
		{"not object", `[1,2]`, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, got, err := incrementJSONField([]byte(tt.doc), Increment{Field: "n", Delta: 1, Limit: tt.limit})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("got %d, want %d (doc %s)", got, tt.want, out)
			}
		})
	}
}

func TestIsUnavailable(t *testing.T) {
	t.Parallel()

	if IsUnavailable(wrapErr("get", "k", ErrNotFound)) {
		t.Error("not found is not unavailability")
	}
	if IsUnavailable(wrapErr("cas", "k", ErrVersionConflict)) {
		t.Error("conflict is not unavailability")
	}
	if !IsUnavailable(wrapErr("get", "k", errors.New("connection refused"))) {
		t.Error("transport failure should be unavailability")
	}
	if IsUnavailable(errors.New("plain")) {
		t.Error("errors outside the store boundary are not store errors")
	}
}
