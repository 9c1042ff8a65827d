// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

package provider

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tomtom215/stridesync/internal/models"
)

// rawActivity is an intervals.icu activity as returned by the list endpoint.
// Only the fields the pipeline maps are declared.
type rawActivity struct {
	ID                 string   `json:"id"`
	AthleteID          *string  `json:"icu_athlete_id"`
	StartDateLocal     string   `json:"start_date_local"`
	Name               string   `json:"name"`
	Description        *string  `json:"description"`
	Type               string   `json:"type"`
	MovingTime         *float64 `json:"moving_time"`
	ICUDistance        *float64 `json:"icu_distance"`
	Distance           *float64 `json:"distance"`
	TotalElevationGain *float64 `json:"total_elevation_gain"`
	AverageSpeed       *float64 `json:"average_speed"`
	AverageHeartrate   *float64 `json:"average_heartrate"`
	AverageCadence     *float64 `json:"average_cadence"`
	AverageWatts       *float64 `json:"icu_average_watts"`
	Calories           *float64 `json:"calories"`
	Gear               *struct {
		ID string `json:"id"`
	} `json:"gear"`
}

// rawGear is an intervals.icu gear entry.
type rawGear struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Brand     *string  `json:"brand"`
	Model     *string  `json:"model"`
	Notes     *string  `json:"notes"`
	Distance  *float64 `json:"distance"`
	Time      *float64 `json:"time"`
	Retired   *string  `json:"retired"`
	Component bool     `json:"component"`
}

// componentTypes are gear types that describe parts of another gear item.
var componentTypes = map[string]bool{
	"chain":           true,
	"tyre":            true,
	"wheel":           true,
	"cassette":        true,
	"chainring":       true,
	"brake pads":      true,
	"battery":         true,
	"other component": true,
}

// localLayouts are tried in order for start_date_local, which the provider
// sends without a zone offset.
var localLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseLocalTime(s string) (time.Time, error) {
	for _, layout := range localLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start_date_local %q", s)
}

func roundInt(f *float64) *int {
	if f == nil {
		return nil
	}
	return models.Ptr(int(math.Round(*f)))
}

// mapActivity maps a provider activity to the internal schema. userID fills
// user_id when the provider omitted it.
func mapActivity(raw rawActivity, userID string) (models.Activity, error) {
	if raw.ID == "" {
		return models.Activity{}, fmt.Errorf("activity without id")
	}
	start, err := parseLocalTime(raw.StartDateLocal)
	if err != nil {
		return models.Activity{}, fmt.Errorf("activity %s: %w", raw.ID, err)
	}

	a := models.Activity{
		ID:                 raw.ID,
		StartDate:          start,
		Name:               raw.Name,
		SportType:          raw.Type,
		UserID:             raw.AthleteID,
		Description:        raw.Description,
		Duration:           raw.MovingTime,
		Distance:           raw.ICUDistance,
		TotalElevationGain: raw.TotalElevationGain,
		AverageSpeed:       raw.AverageSpeed,
		AverageHeartrate:   roundInt(raw.AverageHeartrate),
		AverageCadence:     raw.AverageCadence,
		AveragePower:       raw.AverageWatts,
		Calories:           roundInt(raw.Calories),
	}
	if a.Distance == nil {
		a.Distance = raw.Distance
	}
	if a.UserID == nil && userID != "" {
		a.UserID = models.Ptr(userID)
	}
	if raw.Gear != nil && raw.Gear.ID != "" {
		a.GearID = models.Ptr(raw.Gear.ID)
	}
	if a.Name == "" {
		a.Name = raw.Type
	}
	return a, nil
}

// keepGear reports whether an entry is active, top-level equipment.
func keepGear(raw rawGear) bool {
	if raw.Retired != nil && *raw.Retired != "" {
		return false
	}
	if raw.Component {
		return false
	}
	return !componentTypes[strings.ToLower(strings.TrimSpace(raw.Type))]
}

func mapGear(raw rawGear, userID string) models.Gear {
	return models.Gear{
		ID:          raw.ID,
		UserID:      userID,
		Name:        raw.Name,
		Type:        raw.Type,
		Description: raw.Notes,
		Brand:       raw.Brand,
		Model:       raw.Model,
		Distance:    raw.Distance,
		Time:        raw.Time,
	}
}
