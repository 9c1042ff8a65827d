// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package fitparse decodes FIT activity files into laps and stream samples.
//
// Parse doubles as structural validation: the ingestion coordinator rejects
// any payload Parse cannot decode before scheduling storage tasks.
package fitparse

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/tormoder/fit"

	"github.com/tomtom215/stridesync/internal/models"
)

// ErrEmptyPayload is returned for a zero-length payload.
var ErrEmptyPayload = errors.New("empty payload")

// ParseError reports a payload that is not a decodable FIT activity.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid FIT payload: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Records are the measurement messages of one activity.
type Records struct {
	Laps    []models.Lap
	Samples []models.StreamSample
}

// Parser decodes payloads. The coordinator depends on this rather than Parse
// so tests can substitute failures.
type Parser interface {
	Parse(payload []byte) (*Records, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(payload []byte) (*Records, error)

// Parse implements Parser.
func (f ParserFunc) Parse(payload []byte) (*Records, error) {
	return f(payload)
}

// Default is the tormoder/fit backed parser.
var Default Parser = ParserFunc(Parse)

// Parse decodes payload as a FIT activity file.
func Parse(payload []byte) (*Records, error) {
	if len(payload) == 0 {
		return nil, &ParseError{Err: ErrEmptyPayload}
	}
	file, err := fit.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	activity, err := file.Activity()
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	out := &Records{
		Laps:    make([]models.Lap, 0, len(activity.Laps)),
		Samples: make([]models.StreamSample, 0, len(activity.Records)),
	}
	for i, lap := range activity.Laps {
		out.Laps = append(out.Laps, convertLap(i, lap))
	}
	for i, rec := range activity.Records {
		out.Samples = append(out.Samples, convertRecord(i, rec))
	}
	return out, nil
}

// Validate reports whether payload parses, discarding the records.
func Validate(payload []byte) error {
	_, err := Parse(payload)
	return err
}

var intensityNames = map[fit.Intensity]string{
	0: "active",
	1: "rest",
	2: "warmup",
	3: "cooldown",
	4: "recovery",
	5: "interval",
	6: "other",
}

func convertLap(seq int, lap *fit.LapMsg) models.Lap {
	out := models.Lap{
		Sequence:  seq,
		StartDate: validTime(lap.StartTime, lap.Timestamp),
	}
	if lap.TotalElapsedTime != 0xFFFFFFFF {
		out.Duration = models.Ptr(float64(lap.TotalElapsedTime) / 1000)
	}
	if lap.TotalDistance != 0xFFFFFFFF {
		out.Distance = models.Ptr(float64(lap.TotalDistance) / 100)
	}
	switch {
	case lap.EnhancedAvgSpeed != 0xFFFFFFFF:
		out.AverageSpeed = models.Ptr(float64(lap.EnhancedAvgSpeed) / 1000)
	case lap.AvgSpeed != 0xFFFF:
		out.AverageSpeed = models.Ptr(float64(lap.AvgSpeed) / 1000)
	}
	if lap.AvgHeartRate != 0xFF {
		out.AverageHeartrate = models.Ptr(int(lap.AvgHeartRate))
	}
	if lap.AvgCadence != 0xFF {
		out.AverageCadence = models.Ptr(float64(lap.AvgCadence))
	}
	if lap.AvgPower != 0xFFFF {
		out.AveragePower = models.Ptr(float64(lap.AvgPower))
	}
	if raw := uint16(lap.LeftRightBalance); raw != 0xFFFF {
		out.AverageLRBalance = models.Ptr(float64(raw&0x3FFF) / 100)
	}
	if name, ok := intensityNames[lap.Intensity]; ok {
		out.Intensity = &name
	}
	return out
}

func convertRecord(seq int, rec *fit.RecordMsg) models.StreamSample {
	out := models.StreamSample{
		Sequence: seq,
		Time:     rec.Timestamp.UTC(),
	}
	if !rec.PositionLat.Invalid() && !rec.PositionLong.Invalid() {
		out.Latitude = models.Ptr(rec.PositionLat.Degrees())
		out.Longitude = models.Ptr(rec.PositionLong.Degrees())
	}
	switch {
	case rec.EnhancedAltitude != 0xFFFFFFFF:
		out.Altitude = models.Ptr(float64(rec.EnhancedAltitude)/5 - 500)
	case rec.Altitude != 0xFFFF:
		out.Altitude = models.Ptr(float64(rec.Altitude)/5 - 500)
	}
	if rec.HeartRate != 0xFF {
		out.HeartRate = models.Ptr(int(rec.HeartRate))
	}
	if rec.Cadence != 0xFF {
		out.Cadence = models.Ptr(int(rec.Cadence))
	}
	if rec.Power != 0xFFFF {
		out.Power = models.Ptr(int(rec.Power))
	}
	switch {
	case rec.EnhancedSpeed != 0xFFFFFFFF:
		out.Speed = models.Ptr(float64(rec.EnhancedSpeed) / 1000)
	case rec.Speed != 0xFFFF:
		out.Speed = models.Ptr(float64(rec.Speed) / 1000)
	}
	if rec.Distance != 0xFFFFFFFF {
		out.Distance = models.Ptr(float64(rec.Distance) / 100)
	}
	if rec.Temperature != 0x7F {
		out.Temperature = models.Ptr(float64(rec.Temperature))
	}
	if rec.VerticalOscillation != 0xFFFF {
		out.VerticalOscillation = models.Ptr(float64(rec.VerticalOscillation) / 10)
	}
	if rec.StanceTime != 0xFFFF {
		out.GroundContactTime = models.Ptr(float64(rec.StanceTime) / 10)
	}
	if raw := uint8(rec.LeftRightBalance); raw != 0xFF {
		out.LeftRightBalance = models.Ptr(float64(raw & 0x7F))
	}
	return out
}

// validTime returns the first of ts that is set, in UTC.
func validTime(ts ...time.Time) time.Time {
	for _, t := range ts {
		if !t.IsZero() && t.Year() > 1990 {
			return t.UTC()
		}
	}
	return time.Time{}
}
