// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/stridesync/internal/config"
)

func testProviderConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:           baseURL,
		APIKey:            "secret",
		RequestTimeout:    2 * time.Second,
		MaxPayloadBytes:   1024,
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		Multiplier:        2,
		MaxDelay:          10 * time.Millisecond,
		Jitter:            0,
		RequestsPerSecond: 1000,
		Burst:             100,
		Breaker: config.BreakerConfig{
			MaxRequests:         1,
			Interval:            time.Minute,
			Timeout:             time.Minute,
			ConsecutiveFailures: 100,
		},
	}
}

func TestFetchActivities(t *testing.T) {
	t.Parallel()

	var gotQuery, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/athlete/i42/activities" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotQuery = r.URL.RawQuery
		gotUser, gotPass, _ = r.BasicAuth()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"a1","start_date_local":"2026-03-01T07:00:00","name":"Morning Run","type":"Run",
			 "moving_time":1800,"icu_distance":5000.5,"average_heartrate":151.6,"gear":{"id":"g1"}},
			{"id":"a2","start_date_local":"2026-03-02T07:00:00","name":"Ride","type":"Ride","distance":20000}
		]`))
	}))
	defer srv.Close()

	c := NewClient(testProviderConfig(srv.URL))
	defer c.Close()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	acts, err := c.FetchActivities(context.Background(), "i42", start, end)
	if err != nil {
		t.Fatalf("FetchActivities: %v", err)
	}

	if gotQuery != "newest=2026-03-31&oldest=2026-03-01" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotUser != "API_KEY" || gotPass != "secret" {
		t.Errorf("basic auth = %q/%q", gotUser, gotPass)
	}
	if len(acts) != 2 {
		t.Fatalf("got %d activities, want 2", len(acts))
	}

	a1 := acts[0]
	if a1.SportType != "Run" || a1.Duration == nil || *a1.Duration != 1800 {
		t.Errorf("a1 = %+v", a1)
	}
	if a1.Distance == nil || *a1.Distance != 5000.5 {
		t.Errorf("a1 distance should come from icu_distance, got %v", a1.Distance)
	}
	if a1.AverageHeartrate == nil || *a1.AverageHeartrate != 152 {
		t.Errorf("a1 hr = %v", a1.AverageHeartrate)
	}
	if a1.GearID == nil || *a1.GearID != "g1" {
		t.Errorf("a1 gear = %v", a1.GearID)
	}
	if a1.UserID == nil || *a1.UserID != "i42" {
		t.Errorf("a1 user = %v", a1.UserID)
	}

	a2 := acts[1]
	if a2.Distance == nil || *a2.Distance != 20000 {
		t.Errorf("a2 distance should fall back to distance, got %v", a2.Distance)
	}
	if a2.Duration != nil || a2.AverageSpeed != nil || a2.GearID != nil {
		t.Error("a2 missing fields should be nil")
	}
}

func TestFetchActivitiesUnmappableIsPermanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"missing start date", `[{"id":"a1","name":"Run","type":"Run"}]`},
		{"unrecognised date format", `[{"id":"a1","start_date_local":"01/02/2024","name":"Run","type":"Run"}]`},
		{"missing id", `[{"start_date_local":"2026-03-02T07:00:00","name":"Run","type":"Run"}]`},
		{"one bad entry among good", `[
			{"id":"a1","start_date_local":"2026-03-01T07:00:00","name":"Run","type":"Run"},
			{"id":"a2","start_date_local":"not a date","name":"Broken","type":"Run"}
		]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(testProviderConfig(srv.URL))
			defer c.Close()

			acts, err := c.FetchActivities(context.Background(), "i42", time.Time{}, time.Time{})
			if !IsPermanent(err) {
				t.Fatalf("FetchActivities() = %d activities, err %v; want PermanentError", len(acts), err)
			}
			if n := calls.Load(); n != 1 {
				t.Errorf("calls = %d, want 1 (not retried)", n)
			}
		})
	}
}

func TestFetchActivitiesDefaultRange(t *testing.T) {
	t.Parallel()

	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(testProviderConfig(srv.URL))
	c.now = func() time.Time { return time.Date(2026, 4, 30, 12, 0, 0, 0, time.UTC) }

	if _, err := c.FetchActivities(context.Background(), "i1", time.Time{}, time.Time{}); err != nil {
		t.Fatalf("FetchActivities: %v", err)
	}
	if gotQuery != "newest=2026-04-30&oldest=2026-03-31" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestFetchGearFilters(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":"b1","name":"Road bike","type":"Bike","distance":12000.0},
			{"id":"s1","name":"Old shoes","type":"Shoes","retired":"2025-01-01"},
			{"id":"c1","name":"KMC chain","type":"Chain"},
			{"id":"c2","name":"Power meter","type":"PowerMeter","component":true},
			{"id":"s2","name":"Racers","type":"Shoes","retired":null}
		]`))
	}))
	defer srv.Close()

	gear, err := NewClient(testProviderConfig(srv.URL)).FetchGear(context.Background(), "i42")
	if err != nil {
		t.Fatalf("FetchGear: %v", err)
	}
	if len(gear) != 2 || gear[0].ID != "b1" || gear[1].ID != "s2" {
		t.Fatalf("gear = %+v, want b1 and s2", gear)
	}
	if gear[0].UserID != "i42" || gear[0].Distance == nil || *gear[0].Distance != 12000 {
		t.Errorf("b1 = %+v", gear[0])
	}
}

func TestRetryExactAttempts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		attempts  int
		wantCalls int32
		transient bool
	}{
		{"5xx retried to budget", http.StatusBadGateway, 3, 3, true},
		{"429 retried to budget", http.StatusTooManyRequests, 4, 4, true},
		{"single attempt", http.StatusServiceUnavailable, 1, 1, true},
		{"404 not retried", http.StatusNotFound, 3, 1, false},
		{"401 not retried", http.StatusUnauthorized, 5, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			cfg := testProviderConfig(srv.URL)
			cfg.MaxAttempts = tt.attempts
			_, err := NewClient(cfg).FetchPayload(context.Background(), "a1")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := calls.Load(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if IsTransient(err) != tt.transient || IsPermanent(err) == tt.transient {
				t.Errorf("classification wrong for %v", err)
			}
		})
	}
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("FITDATA"))
	}))
	defer srv.Close()

	body, err := NewClient(testProviderConfig(srv.URL)).FetchPayload(context.Background(), "a1")
	if err != nil {
		t.Fatalf("FetchPayload: %v", err)
	}
	if string(body) != "FITDATA" || calls.Load() != 3 {
		t.Errorf("body=%q calls=%d", body, calls.Load())
	}
}

func TestMalformedJSONIsPermanent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"not":"a list"`))
	}))
	defer srv.Close()

	_, err := NewClient(testProviderConfig(srv.URL)).FetchGear(context.Background(), "i1")
	if !IsPermanent(err) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestPayloadSizeLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := NewClient(testProviderConfig(srv.URL)).FetchPayload(context.Background(), "a1")
	if !IsPermanent(err) {
		t.Fatalf("expected PermanentError for oversized body, got %v", err)
	}
}

func TestBreakerOpens(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.MaxAttempts = 1
	cfg.Breaker.ConsecutiveFailures = 2
	c := NewClient(cfg)

	for i := 0; i < 2; i++ {
		_, _ = c.FetchPayload(context.Background(), "a1")
	}
	_, err := c.FetchPayload(context.Background(), "a1")
	if !IsTransient(err) {
		t.Fatalf("open circuit should surface as transient, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (third rejected by breaker)", calls.Load())
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testProviderConfig(srv.URL)
	cfg.BaseDelay = time.Hour
	cfg.MaxDelay = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(cfg).FetchPayload(ctx, "a1")
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff wait ignored context cancellation")
	}
}
