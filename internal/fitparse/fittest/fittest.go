// Stridesync - Activity Sync and Ingestion Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stridesync

// Package fittest builds small FIT activity files for tests.
package fittest

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/tormoder/fit"
)

// Start is the timestamp of the first lap and sample.
var Start = time.Date(2026, 3, 14, 7, 30, 0, 0, time.UTC)

// Activity encodes an activity with the given number of laps and one-second
// samples. Each lap is 1km long and each sample carries heart rate, power,
// speed and distance.
func Activity(t testing.TB, laps, samples int) []byte {
	t.Helper()

	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, false))
	if err != nil {
		t.Fatalf("fit.NewFile: %v", err)
	}
	file.FileId.TimeCreated = Start

	act, err := file.Activity()
	if err != nil {
		t.Fatalf("file.Activity: %v", err)
	}

	for i := 0; i < laps; i++ {
		lap := fit.NewLapMsg()
		lap.Timestamp = Start.Add(time.Duration(i+1) * 5 * time.Minute)
		lap.StartTime = Start.Add(time.Duration(i) * 5 * time.Minute)
		lap.TotalElapsedTime = 300_000 // 300s, scale 1000
		lap.TotalDistance = 100_000    // 1000m, scale 100
		lap.AvgHeartRate = 150
		lap.AvgPower = 250
		lap.Intensity = 0
		act.Laps = append(act.Laps, lap)
	}

	for i := 0; i < samples; i++ {
		rec := fit.NewRecordMsg()
		rec.Timestamp = Start.Add(time.Duration(i) * time.Second)
		rec.HeartRate = uint8(140 + i%10)
		rec.Power = uint16(200 + i)
		rec.Speed = 3500 // 3.5 m/s
		rec.Distance = uint32(i * 350)
		act.Records = append(act.Records, rec)
	}

	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("fit.Encode: %v", err)
	}
	return buf.Bytes()
}

// Corrupt returns bytes that are not a FIT file.
func Corrupt() []byte {
	return []byte("this is not a FIT file")
}
