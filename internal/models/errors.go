// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRateLimitExceeded is returned when a user exhausted the sync window.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrSyncInProgress is returned when a user already has a PENDING or
	// IN_PROGRESS sync.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ValidationError reports a rejected input. Items lists offending item IDs
// when the input was a batch.
type ValidationError struct {
	Field   string
	Items   []string
	Message string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Field != "" {
		b.WriteString(" on ")
		b.WriteString(e.Field)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Items) > 0 {
		fmt.Fprintf(&b, " (items: %s)", strings.Join(e.Items, ", "))
	}
	return b.String()
}

// StorageError reports a failed write to the relational store.
type StorageError struct {
	Task   string
	ItemID string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage task %s failed for item %s: %v", e.Task, e.ItemID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
