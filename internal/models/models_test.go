// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestStatusCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{"", StatusPending, true},
		{"", StatusInProgress, false},
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusPending, false},
		{StatusInProgress, StatusInProgress, true},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusInProgress, false},
		{StatusFailed, StatusFailed, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, "bogus", false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%q -> %q: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	for s, want := range map[Status]bool{
		StatusPending:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
	} {
		if s.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, !want, want)
		}
	}
}

func TestSyncStatusValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		status  SyncStatus
		wantErr bool
	}{
		{"fresh pending", NewSyncStatus(now), false},
		{"counters within total", SyncStatus{Status: StatusInProgress, TotalItems: 4, ProcessedItems: 3, FailedItems: 1}, false},
		{"sum exceeds total", SyncStatus{Status: StatusInProgress, TotalItems: 2, ProcessedItems: 2, FailedItems: 1}, true},
		{"negative counter", SyncStatus{Status: StatusInProgress, FailedItems: -1}, true},
		{"unknown status", SyncStatus{Status: "PAUSED"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.status.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if err != nil && !errors.As(err, &verr) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestActivityStatusValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		status  ActivityStatus
		wantErr bool
	}{
		{"fresh pending", NewActivityStatus("a1", 3, now), false},
		{"completed all tasks", ActivityStatus{ItemID: "a1", Status: StatusCompleted, CompletedTasks: 3, TotalTasks: 3}, false},
		{"completed early", ActivityStatus{ItemID: "a1", Status: StatusCompleted, CompletedTasks: 2, TotalTasks: 3}, true},
		{"failed with zero tasks", ActivityStatus{ItemID: "a1", Status: StatusFailed, TotalTasks: 3}, false},
		{"overcounted", ActivityStatus{ItemID: "a1", Status: StatusInProgress, CompletedTasks: 4, TotalTasks: 3}, true},
		{"missing id", ActivityStatus{Status: StatusPending, TotalTasks: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.status.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestActivityStatusFailIsIrrevocable(t *testing.T) {
	t.Parallel()

	st := NewActivityStatus("a1", 3, time.Now())
	if !st.Fail("laps: boom", time.Now()) {
		t.Fatal("expected first Fail to change the record")
	}
	if st.Fail("stream: later", time.Now()) {
		t.Fatal("expected second Fail to be a no-op")
	}
	if st.ErrorMessage == nil || *st.ErrorMessage != "laps: boom" {
		t.Errorf("error message overwritten: %v", st.ErrorMessage)
	}
}

func TestStatusWireFormat(t *testing.T) {
	t.Parallel()

	st := SyncStatus{Status: StatusInProgress, TotalItems: 4, LastUpdated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	data, err := json.Marshal(st)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(data)
	for _, want := range []string{`"status":"in_progress"`, `"total_items":4`, `"error_message":null`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in %s", want, got)
		}
	}
}

func TestActivityOptionalFieldsStayNil(t *testing.T) {
	t.Parallel()

	var a Activity
	if err := json.Unmarshal([]byte(`{"id":"i1","start_date":"2026-03-01T07:00:00Z","name":"Run","sport_type":"Run","distance":0}`), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Distance == nil || *a.Distance != 0 {
		t.Errorf("explicit zero distance lost: %v", a.Distance)
	}
	if a.Duration != nil || a.AverageHeartrate != nil || a.GearID != nil {
		t.Error("omitted fields should remain nil")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := error(&StorageError{Task: "laps", ItemID: "a1", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("StorageError should unwrap to its cause")
	}

	verr := &ValidationError{Field: "payload", Items: []string{"a2", "a3"}, Message: "not a FIT file"}
	if got := verr.Error(); !strings.Contains(got, "a2, a3") || !strings.Contains(got, "payload") {
		t.Errorf("unexpected message %q", got)
	}
}
