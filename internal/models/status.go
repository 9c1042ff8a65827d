// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a sync run or an ingested item.
type Status string

// Lifecycle states. Wire values are lowercase.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is COMPLETED or FAILED.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. Writing the same state again is allowed; a terminal state only
// accepts itself.
func (s Status) CanTransition(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case "":
		return next == StatusPending
	case StatusPending:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}

// SyncStatus is the progress record for one user's sync.
type SyncStatus struct {
	Status         Status    `json:"status"`
	TotalItems     int       `json:"total_items"`
	ProcessedItems int       `json:"processed_items"`
	FailedItems    int       `json:"failed_items"`
	ErrorMessage   *string   `json:"error_message"`
	LastUpdated    time.Time `json:"last_updated"`
}

// NewSyncStatus returns a PENDING status with zeroed counters, the shape
// written when a run is claimed.
func NewSyncStatus(now time.Time) SyncStatus {
	return SyncStatus{Status: StatusPending, LastUpdated: now.UTC()}
}

// Validate enforces processed+failed <= total on non-negative counters.
func (s SyncStatus) Validate() error {
	if !s.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s.Status)}
	}
	if s.TotalItems < 0 || s.ProcessedItems < 0 || s.FailedItems < 0 {
		return &ValidationError{Field: "counters", Message: "counters must be non-negative"}
	}
	if s.ProcessedItems+s.FailedItems > s.TotalItems {
		return &ValidationError{
			Field: "counters",
			Message: fmt.Sprintf("processed (%d) + failed (%d) exceeds total (%d)",
				s.ProcessedItems, s.FailedItems, s.TotalItems),
		}
	}
	return nil
}

// SyncStatusKey is the status store key of a user's sync record.
func SyncStatusKey(userID string) string {
	return "sync:status:" + userID
}

// Fail moves the record to FAILED with msg.
func (s *SyncStatus) Fail(msg string, now time.Time) {
	s.Status = StatusFailed
	s.ErrorMessage = &msg
	s.LastUpdated = now.UTC()
}

// ActivityStatus is the progress record for one item in the ingestion half.
type ActivityStatus struct {
	ItemID         string    `json:"item_id"`
	Status         Status    `json:"status"`
	CompletedTasks int       `json:"completed_tasks"`
	TotalTasks     int       `json:"total_tasks"`
	ErrorMessage   *string   `json:"error_message"`
	LastUpdated    time.Time `json:"last_updated"`

	// SubmissionID identifies the submission that owns the record. A repeated
	// request carrying the same idempotency key maps to the same ID.
	SubmissionID string `json:"submission_id,omitempty"`
}

// NewActivityStatus returns a PENDING record for itemID expecting totalTasks tasks.
func NewActivityStatus(itemID string, totalTasks int, now time.Time) ActivityStatus {
	return ActivityStatus{
		ItemID:      itemID,
		Status:      StatusPending,
		TotalTasks:  totalTasks,
		LastUpdated: now.UTC(),
	}
}

// Validate checks the enum and completed_tasks <= total_tasks.
// COMPLETED additionally requires every task to have finished.
func (a ActivityStatus) Validate() error {
	if a.ItemID == "" {
		return &ValidationError{Field: "item_id", Message: "item_id is required"}
	}
	if !a.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", a.Status)}
	}
	if a.TotalTasks < 0 || a.CompletedTasks < 0 {
		return &ValidationError{Field: "tasks", Message: "task counters must be non-negative"}
	}
	if a.CompletedTasks > a.TotalTasks {
		return &ValidationError{
			Field:   "completed_tasks",
			Message: fmt.Sprintf("completed_tasks (%d) exceeds total_tasks (%d)", a.CompletedTasks, a.TotalTasks),
		}
	}
	if a.Status == StatusCompleted && a.CompletedTasks != a.TotalTasks {
		return &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("completed with %d of %d tasks", a.CompletedTasks, a.TotalTasks),
		}
	}
	return nil
}

// ActivityStatusKey is the status store key of an item's ingestion record.
func ActivityStatusKey(itemID string) string {
	return "activity:" + itemID
}

// Fail moves the record to FAILED with msg unless it is already terminal.
// It reports whether the record changed.
func (a *ActivityStatus) Fail(msg string, now time.Time) bool {
	if a.Status.IsTerminal() {
		return false
	}
	a.Status = StatusFailed
	a.ErrorMessage = &msg
	a.LastUpdated = now.UTC()
	return true
}
