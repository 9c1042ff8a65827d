// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package models

import "time"

// Activity is one provider activity mapped to the internal schema.
// Optional measurements are nil when the provider omitted them.
type Activity struct {
	ID        string    `json:"id" validate:"required,max=64"`
	StartDate time.Time `json:"start_date" validate:"required"`
	Name      string    `json:"name" validate:"required,max=512"`
	SportType string    `json:"sport_type" validate:"required,max=64"`

	UserID             *string  `json:"user_id,omitempty" validate:"omitempty,max=64"`
	Description        *string  `json:"description,omitempty"`
	Duration           *float64 `json:"duration,omitempty" validate:"omitempty,gte=0"`
	Distance           *float64 `json:"distance,omitempty" validate:"omitempty,gte=0"`
	TotalElevationGain *float64 `json:"total_elevation_gain,omitempty"`
	AverageSpeed       *float64 `json:"average_speed,omitempty" validate:"omitempty,gte=0"`
	AverageHeartrate   *int     `json:"average_heartrate,omitempty" validate:"omitempty,gte=0,lte=300"`
	AverageCadence     *float64 `json:"average_cadence,omitempty"`
	AveragePower       *float64 `json:"average_power,omitempty"`
	Calories           *int     `json:"calories,omitempty"`
	GearID             *string  `json:"gear_id,omitempty"`
}

// Gear is one piece of user equipment. Retired and component entries are
// filtered out by the provider client and never reach this type.
type Gear struct {
	ID     string `json:"id" validate:"required,max=64"`
	UserID string `json:"user_id" validate:"required,max=64"`
	Name   string `json:"name" validate:"required,max=256"`
	Type   string `json:"type" validate:"required,max=64"`

	Description *string  `json:"description,omitempty"`
	Brand       *string  `json:"brand,omitempty"`
	Model       *string  `json:"model,omitempty"`
	Distance    *float64 `json:"distance,omitempty" validate:"omitempty,gte=0"`
	Time        *float64 `json:"time,omitempty" validate:"omitempty,gte=0"`
}

// Lap is a FIT "lap" message.
type Lap struct {
	Sequence         int       `json:"sequence"`
	StartDate        time.Time `json:"start_date"`
	Duration         *float64  `json:"duration,omitempty"`
	Distance         *float64  `json:"distance,omitempty"`
	AverageSpeed     *float64  `json:"average_speed,omitempty"`
	AverageHeartrate *int      `json:"average_heartrate,omitempty"`
	AverageCadence   *float64  `json:"average_cadence,omitempty"`
	AveragePower     *float64  `json:"average_power,omitempty"`
	AverageLRBalance *float64  `json:"average_lr_balance,omitempty"`
	Intensity        *string   `json:"intensity,omitempty"`
}

// StreamSample is a FIT "record" message: one sample of the activity stream.
type StreamSample struct {
	Sequence            int       `json:"sequence"`
	Time                time.Time `json:"time"`
	Latitude            *float64  `json:"latitude,omitempty"`
	Longitude           *float64  `json:"longitude,omitempty"`
	Altitude            *float64  `json:"altitude,omitempty"`
	HeartRate           *int      `json:"heart_rate,omitempty"`
	Cadence             *int      `json:"cadence,omitempty"`
	Power               *int      `json:"power,omitempty"`
	Speed               *float64  `json:"speed,omitempty"`
	Distance            *float64  `json:"distance,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
	VerticalOscillation *float64  `json:"vertical_oscillation,omitempty"`
	GroundContactTime   *float64  `json:"ground_contact_time,omitempty"`
	LeftRightBalance    *float64  `json:"left_right_balance,omitempty"`
}

// SyncRequest is the body of POST /api/v1/sync. Dates accept RFC3339 or
// YYYY-MM-DD; parsing happens in the handler.
type SyncRequest struct {
	UserID    string `json:"user_id" validate:"required,max=64"`
	StartDate string `json:"start_date,omitempty" validate:"omitempty,syncdate"`
	EndDate   string `json:"end_date,omitempty" validate:"omitempty,syncdate"`
}

// SyncCompletedEvent is published when a sync run reaches a terminal state.
type SyncCompletedEvent struct {
	UserID         string    `json:"user_id"`
	Status         Status    `json:"status"`
	TotalItems     int       `json:"total_items"`
	ProcessedItems int       `json:"processed_items"`
	FailedItems    int       `json:"failed_items"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ActivityIngestedEvent is published when an item reaches a terminal state.
type ActivityIngestedEvent struct {
	ItemID       string    `json:"item_id"`
	Status       Status    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Ptr returns a pointer to v. Used when mapping optional provider fields.
func Ptr[T any](v T) *T {
	return &v
}
