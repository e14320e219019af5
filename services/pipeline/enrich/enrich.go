// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package enrich reconciles dispatch plan rows against Samsara trip
// actuals, joining on driver and service date and deriving variance
// metrics used by operations reporting.
package enrich

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// averageSpeedMph estimates trip duration from planned miles when the
// API does not report one. 35 mph reflects mixed urban/highway routes.
const averageSpeedMph = 35.0

// Options tunes the dispatch-to-trip join.
type Options struct {
	// DriverColumn is the dispatch column holding the driver name.
	DriverColumn string

	// DateColumn is the dispatch column holding the service date.
	DateColumn string

	// DateTolerance widens the date match. A trip whose date falls
	// within ±DateTolerance of the dispatch date still matches,
	// covering overnight routes that close past midnight.
	DateTolerance time.Duration
}

// DefaultOptions matches the standard dispatch report layout.
func DefaultOptions() Options {
	return Options{
		DriverColumn:  "driver_name",
		DateColumn:    "date",
		DateTolerance: 24 * time.Hour,
	}
}

// Metrics summarizes one enrichment pass.
type Metrics struct {
	DispatchRows    int
	TripRows        int
	MatchedRows     int
	MatchRate       float64
	AvgMilesVar     float64
	AvgStopsVar     float64
	AvgIdlePercent  float64
	UnmatchedDriver []string
}

// Enrich joins trip actuals onto the dispatch table in place.
//
// Description:
//
//	For each dispatch row, finds the first trip whose driver name
//	matches (case/space-insensitive) and whose trip date is within the
//	configured tolerance of the dispatch date. Matched rows receive
//	samsara_* actual columns plus derived variance metrics. Each trip
//	matches at most one dispatch row.
//
// Inputs:
//
//	t - Normalized dispatch table (mutated)
//	trips - Samsara trips covering the dispatch window
//	opts - Join configuration; zero value takes DefaultOptions
//
// Outputs:
//
//	Metrics - Match rate and variance averages for the run
func Enrich(t *table.Table, trips []samsara.Trip, opts Options) Metrics {
	def := DefaultOptions()
	if opts.DriverColumn == "" {
		opts.DriverColumn = def.DriverColumn
	}
	if opts.DateColumn == "" {
		opts.DateColumn = def.DateColumn
	}
	if opts.DateTolerance <= 0 {
		opts.DateTolerance = def.DateTolerance
	}

	for _, col := range []string{
		"samsara_match_found",
		"samsara_trip_id", "samsara_miles", "samsara_stops",
		"samsara_idle_minutes", "samsara_fuel_gallons",
		"miles_variance", "miles_variance_pct",
		"stops_variance", "stops_variance_pct",
		"estimated_trip_hours", "idle_percentage",
	} {
		t.AddColumn(col)
	}

	used := make([]bool, len(trips))
	m := Metrics{DispatchRows: t.Len(), TripRows: len(trips)}
	var milesVarSum, stopsVarSum, idlePctSum float64
	var milesN, stopsN, idleN int

	for i := 0; i < t.Len(); i++ {
		driver, _ := t.Cell(i, opts.DriverColumn)
		date, hasDate := t.Time(i, opts.DateColumn)

		trip, idx := matchTrip(trips, used, driver, date, hasDate, opts.DateTolerance)
		if idx < 0 {
			t.SetCell(i, "samsara_match_found", "false")
			if driver != "" {
				m.UnmatchedDriver = append(m.UnmatchedDriver, driver)
			}
			continue
		}
		used[idx] = true
		m.MatchedRows++
		t.SetCell(i, "samsara_match_found", "true")

		idleMin := samsara.MsToMinutes(trip.IdleTimeMs)
		t.SetCell(i, "samsara_trip_id", trip.ID)
		t.SetFloat(i, "samsara_miles", trip.DistanceMiles)
		t.SetFloat(i, "samsara_stops", float64(trip.StopCount))
		t.SetFloat(i, "samsara_idle_minutes", idleMin)
		t.SetFloat(i, "samsara_fuel_gallons", samsara.MlToGallons(trip.FuelConsumedMl))

		if planned, ok := t.Float(i, "planned_miles"); ok {
			v := trip.DistanceMiles - planned
			t.SetFloat(i, "miles_variance", v)
			if planned != 0 {
				t.SetFloat(i, "miles_variance_pct", v/planned*100)
			}
			milesVarSum += v
			milesN++

			hours := planned / averageSpeedMph
			t.SetFloat(i, "estimated_trip_hours", hours)
			if hours > 0 {
				pct := idleMin / (hours * 60) * 100
				t.SetFloat(i, "idle_percentage", pct)
				idlePctSum += pct
				idleN++
			}
		}
		if planned, ok := t.Float(i, "planned_stops"); ok {
			v := float64(trip.StopCount) - planned
			t.SetFloat(i, "stops_variance", v)
			if planned != 0 {
				t.SetFloat(i, "stops_variance_pct", v/planned*100)
			}
			stopsVarSum += v
			stopsN++
		}
	}

	if m.DispatchRows > 0 {
		m.MatchRate = float64(m.MatchedRows) / float64(m.DispatchRows)
	}
	if milesN > 0 {
		m.AvgMilesVar = milesVarSum / float64(milesN)
	}
	if stopsN > 0 {
		m.AvgStopsVar = stopsVarSum / float64(stopsN)
	}
	if idleN > 0 {
		m.AvgIdlePercent = idlePctSum / float64(idleN)
	}

	slog.Info("enriched dispatch table",
		"rows", m.DispatchRows, "trips", m.TripRows,
		"matched", m.MatchedRows, "match_rate", m.MatchRate)
	return m
}

// matchTrip finds the first unused trip for driver within the date
// tolerance. A dispatch row with no parseable date matches on driver
// alone.
func matchTrip(trips []samsara.Trip, used []bool, driver string, date time.Time, hasDate bool, tol time.Duration) (samsara.Trip, int) {
	want := canonicalDriver(driver)
	if want == "" {
		return samsara.Trip{}, -1
	}
	for i, tr := range trips {
		if used[i] || canonicalDriver(tr.Driver.Name) != want {
			continue
		}
		if !hasDate {
			return tr, i
		}
		td, err := time.Parse("2006-01-02", tr.TripDate())
		if err != nil {
			continue
		}
		diff := td.Sub(date)
		if diff < 0 {
			diff = -diff
		}
		if diff <= tol {
			return tr, i
		}
	}
	return samsara.Trip{}, -1
}

// canonicalDriver normalizes a driver name for matching.
func canonicalDriver(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
