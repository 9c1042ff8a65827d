// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package ingest

import (
	"context"

	"github.com/tomtom215/stridesync/internal/fitparse"
	"github.com/tomtom215/stridesync/internal/models"
)

// Repository is the relational store the manifest writes to.
type Repository interface {
	CreateActivity(ctx context.Context, activity *models.Activity, payload []byte) error
	StoreLaps(ctx context.Context, activityID string, laps []models.Lap) error
	StoreStreams(ctx context.Context, activityID string, samples []models.StreamSample) error
	UpsertGear(ctx context.Context, gear *models.Gear) error
}

// Item is one accepted activity with its parsed payload. It is shared
// read-only by every task of the manifest.
type Item struct {
	Activity models.Activity
	Payload  []byte
	Records  *fitparse.Records

	// SubmissionID scopes progress writes to the submission that scheduled them.
	SubmissionID string
}

// Task is one independent storage operation.
type Task struct {
	Name string
	Run  func(ctx context.Context, repo Repository, item *Item) error
}

// TaskManifest is the ordered set of tasks run for every item.
type TaskManifest []Task

// Task names.
const (
	TaskMetadata = "metadata"
	TaskLaps     = "laps"
	TaskStream   = "stream"
)

// DefaultManifest stores metadata, laps and the sample stream.
var DefaultManifest = TaskManifest{
	{
		Name: TaskMetadata,
		Run: func(ctx context.Context, repo Repository, item *Item) error {
			return repo.CreateActivity(ctx, &item.Activity, item.Payload)
		},
	},
	{
		Name: TaskLaps,
		Run: func(ctx context.Context, repo Repository, item *Item) error {
			return repo.StoreLaps(ctx, item.Activity.ID, item.Records.Laps)
		},
	},
	{
		Name: TaskStream,
		Run: func(ctx context.Context, repo Repository, item *Item) error {
			return repo.StoreStreams(ctx, item.Activity.ID, item.Records.Samples)
		},
	},
}

// TotalTasks is the total_tasks value of every ActivityStatus.
func (m TaskManifest) TotalTasks() int {
	return len(m)
}

// Names returns the task names in order.
func (m TaskManifest) Names() []string {
	names := make([]string, len(m))
	for i, t := range m {
		names[i] = t.Name
	}
	return names
}
