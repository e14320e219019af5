// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package samsara

import (
	"strconv"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// millilitersPerGallon converts API fuel volumes to US gallons.
const millilitersPerGallon = 3785.41

// MsToMinutes converts a millisecond duration to fractional minutes.
func MsToMinutes(ms int64) float64 {
	return float64(ms) / 60000.0
}

// MlToGallons converts milliliters to US gallons.
func MlToGallons(ml float64) float64 {
	return ml / millilitersPerGallon
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// TripsToTable flattens trips into the canonical enrichment columns.
// Idle time is emitted in minutes and fuel in gallons.
func TripsToTable(trips []Trip) *table.Table {
	t := table.New(
		"trip_id", "driver_id", "driver_name", "vehicle_id", "vehicle_name",
		"trip_date", "start_time", "end_time", "total_miles", "stop_count",
		"idle_time", "fuel_used", "start_location", "end_location",
	)
	for _, tr := range trips {
		t.AppendRow([]string{
			tr.ID,
			tr.Driver.ID,
			tr.Driver.Name,
			tr.Vehicle.ID,
			tr.Vehicle.Name,
			tr.TripDate(),
			tr.StartTime,
			tr.EndTime,
			formatFloat(tr.DistanceMiles),
			strconv.Itoa(tr.StopCount),
			formatFloat(MsToMinutes(tr.IdleTimeMs)),
			formatFloat(MlToGallons(tr.FuelConsumedMl)),
			tr.StartAddress.FormattedLocation,
			tr.EndAddress.FormattedLocation,
		})
	}
	return t
}

// LocationsToTable flattens vehicle GPS readings.
func LocationsToTable(locs []VehicleLocation) *table.Table {
	t := table.New(
		"vehicle_id", "vehicle_name", "latitude", "longitude",
		"speed", "heading", "location_time", "formatted_location",
	)
	for _, l := range locs {
		t.AppendRow([]string{
			l.ID,
			l.Name,
			formatFloat(l.Location.Latitude),
			formatFloat(l.Location.Longitude),
			formatFloat(l.Location.Speed),
			formatFloat(l.Location.Heading),
			l.Location.Time,
			l.Location.Reverse.FormattedLocation,
		})
	}
	return t
}

// DriverStatsToTable flattens driver aggregates with converted units.
func DriverStatsToTable(stats []DriverStats) *table.Table {
	t := table.New(
		"driver_id", "driver_name", "total_miles",
		"drive_time_minutes", "idle_time_minutes", "fuel_used_gallons",
	)
	for _, s := range stats {
		t.AppendRow([]string{
			s.Driver.ID,
			s.Driver.Name,
			formatFloat(s.DistanceMiles),
			formatFloat(MsToMinutes(s.DriveTimeMs)),
			formatFloat(MsToMinutes(s.IdleTimeMs)),
			formatFloat(MlToGallons(s.FuelConsumedMl)),
		})
	}
	return t
}

// VehicleStatsToTable flattens vehicle gauge snapshots. Odometer is
// converted from meters to miles.
func VehicleStatsToTable(stats []VehicleStats) *table.Table {
	t := table.New(
		"vehicle_id", "vehicle_name", "odometer_miles",
		"engine_hours", "fuel_percent", "battery_volts", "reading_time",
	)
	for _, s := range stats {
		t.AppendRow([]string{
			s.Vehicle.ID,
			s.Vehicle.Name,
			formatFloat(s.OdometerMeters / 1609.344),
			formatFloat(s.EngineHours),
			formatFloat(s.FuelPercent),
			formatFloat(s.BatteryMilliVolt / 1000.0),
			s.Time,
		})
	}
	return t
}
