// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package enrich

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/table"
)

func dispatchTable() *table.Table {
	t := table.New("driver_name", "date", "planned_miles", "planned_stops")
	t.AppendRow([]string{"John Smith", "2025-06-01", "100", "10"})
	t.AppendRow([]string{"Mary Jones", "2025-06-01", "80", "8"})
	t.AppendRow([]string{"No Match", "2025-06-01", "50", "5"})
	return t
}

func TestEnrichJoinsAndDerives(t *testing.T) {
	tbl := dispatchTable()
	trips := []samsara.Trip{
		{
			ID:             "t1",
			Driver:         samsara.EntityRef{ID: "d1", Name: "john  smith"}, // spacing and case differ
			StartTime:      "2025-06-01T07:30:00Z",
			DistanceMiles:  110,
			StopCount:      12,
			IdleTimeMs:     1800000, // 30 minutes
			FuelConsumedMl: 3785.41,
		},
		{
			ID:            "t2",
			Driver:        samsara.EntityRef{ID: "d2", Name: "Mary Jones"},
			StartTime:     "2025-06-02T02:00:00Z", // next day, within tolerance
			DistanceMiles: 72,
			StopCount:     8,
		},
	}

	m := Enrich(tbl, trips, Options{})

	assert.Equal(t, 3, m.DispatchRows)
	assert.Equal(t, 2, m.MatchedRows)
	assert.InDelta(t, 2.0/3.0, m.MatchRate, 1e-9)
	assert.Equal(t, []string{"No Match"}, m.UnmatchedDriver)

	id, _ := tbl.Cell(0, "samsara_trip_id")
	assert.Equal(t, "t1", id)
	found, _ := tbl.Cell(0, "samsara_match_found")
	assert.Equal(t, "true", found)

	mv, ok := tbl.Float(0, "miles_variance")
	require.True(t, ok)
	assert.Equal(t, 10.0, mv)
	mvp, _ := tbl.Float(0, "miles_variance_pct")
	assert.Equal(t, 10.0, mvp)

	sv, _ := tbl.Float(0, "stops_variance")
	assert.Equal(t, 2.0, sv)
	svp, _ := tbl.Float(0, "stops_variance_pct")
	assert.Equal(t, 20.0, svp)

	// 100 planned miles at 35 mph, 30 idle minutes.
	hours, _ := tbl.Float(0, "estimated_trip_hours")
	assert.InDelta(t, 100.0/35.0, hours, 1e-9)
	idlePct, _ := tbl.Float(0, "idle_percentage")
	assert.InDelta(t, 30.0/(100.0/35.0*60)*100, idlePct, 1e-9)

	fuel, _ := tbl.Float(0, "samsara_fuel_gallons")
	assert.InDelta(t, 1.0, fuel, 1e-9)

	// Next-day trip still matched via the ±1 day tolerance.
	id, _ = tbl.Cell(1, "samsara_trip_id")
	assert.Equal(t, "t2", id)

	// Unmatched row keeps empty actuals.
	id, _ = tbl.Cell(2, "samsara_trip_id")
	assert.Empty(t, id)
	found, _ = tbl.Cell(2, "samsara_match_found")
	assert.Equal(t, "false", found)
	_, ok = tbl.Float(2, "miles_variance")
	assert.False(t, ok)
}

func TestEnrichDateOutsideTolerance(t *testing.T) {
	tbl := table.New("driver_name", "date", "planned_miles")
	tbl.AppendRow([]string{"John Smith", "2025-06-01", "100"})

	trips := []samsara.Trip{{
		ID:        "t1",
		Driver:    samsara.EntityRef{Name: "John Smith"},
		StartTime: "2025-06-05T08:00:00Z",
	}}

	m := Enrich(tbl, trips, Options{})
	assert.Zero(t, m.MatchedRows)
}

func TestEnrichTripUsedOnce(t *testing.T) {
	tbl := table.New("driver_name", "date")
	tbl.AppendRow([]string{"John Smith", "2025-06-01"})
	tbl.AppendRow([]string{"John Smith", "2025-06-01"})

	trips := []samsara.Trip{{
		ID:        "t1",
		Driver:    samsara.EntityRef{Name: "John Smith"},
		StartTime: "2025-06-01T08:00:00Z",
	}}

	m := Enrich(tbl, trips, Options{})
	assert.Equal(t, 1, m.MatchedRows)

	first, _ := tbl.Cell(0, "samsara_trip_id")
	second, _ := tbl.Cell(1, "samsara_trip_id")
	assert.Equal(t, "t1", first)
	assert.Empty(t, second)
}

func TestEnrichNoDateColumnMatchesOnDriver(t *testing.T) {
	tbl := table.New("driver_name", "planned_miles")
	tbl.AppendRow([]string{"John Smith", "100"})

	trips := []samsara.Trip{{
		ID:        "t1",
		Driver:    samsara.EntityRef{Name: "John Smith"},
		StartTime: "2025-06-05T08:00:00Z",
	}}

	m := Enrich(tbl, trips, Options{})
	assert.Equal(t, 1, m.MatchedRows)
}

func TestEnrichZeroPlannedNoDivide(t *testing.T) {
	tbl := table.New("driver_name", "date", "planned_miles", "planned_stops")
	tbl.AppendRow([]string{"John Smith", "2025-06-01", "0", "0"})

	trips := []samsara.Trip{{
		ID:            "t1",
		Driver:        samsara.EntityRef{Name: "John Smith"},
		StartTime:     "2025-06-01T08:00:00Z",
		DistanceMiles: 10,
		StopCount:     2,
	}}

	Enrich(tbl, trips, Options{})

	mv, _ := tbl.Float(0, "miles_variance")
	assert.Equal(t, 10.0, mv)
	// Percentage left empty rather than dividing by zero.
	_, ok := tbl.Float(0, "miles_variance_pct")
	assert.False(t, ok)
	_, ok = tbl.Float(0, "idle_percentage")
	assert.False(t, ok)
}
