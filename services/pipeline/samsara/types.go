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
	"encoding/json"
	"time"
)

// EntityRef is the id/name pair the API embeds for drivers and vehicles.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Address is a resolved location on a trip endpoint.
type Address struct {
	FormattedLocation string  `json:"formattedLocation"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
}

// Trip is a completed or in-progress fleet trip as returned by the API.
// Durations arrive in milliseconds and fuel in milliliters; use the
// conversion helpers before writing rows.
type Trip struct {
	ID             string    `json:"id"`
	Driver         EntityRef `json:"driver"`
	Vehicle        EntityRef `json:"vehicle"`
	StartTime      string    `json:"startTime"`
	EndTime        string    `json:"endTime"`
	StartAddress   Address   `json:"startAddress"`
	EndAddress     Address   `json:"endAddress"`
	DistanceMiles  float64   `json:"distanceMiles"`
	StopCount      int       `json:"stopCount"`
	IdleTimeMs     int64     `json:"idleTimeMs"`
	FuelConsumedMl float64   `json:"fuelConsumedMl"`
}

// TripDate extracts the calendar date of the trip start, used as one
// half of the driver+date join key.
func (t Trip) TripDate() string {
	ts, err := time.Parse(time.RFC3339, t.StartTime)
	if err != nil {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}

// VehicleLocation is a point-in-time GPS reading for a vehicle.
type VehicleLocation struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Speed     float64 `json:"speed"`
		Heading   float64 `json:"heading"`
		Time      string  `json:"time"`
		Reverse   struct {
			FormattedLocation string `json:"formattedLocation"`
		} `json:"reverseGeocode"`
	} `json:"location"`
}

// DriverStats aggregates per-driver activity over a requested window.
type DriverStats struct {
	Driver         EntityRef `json:"driver"`
	DistanceMiles  float64   `json:"distanceMiles"`
	DriveTimeMs    int64     `json:"driveTimeMs"`
	IdleTimeMs     int64     `json:"idleTimeMs"`
	FuelConsumedMl float64   `json:"fuelConsumedMl"`
}

// VehicleStats is the latest reported gauge set for a vehicle.
type VehicleStats struct {
	Vehicle          EntityRef `json:"vehicle"`
	OdometerMeters   float64   `json:"odometerMeters"`
	EngineHours      float64   `json:"engineHours"`
	FuelPercent      float64   `json:"fuelPercent"`
	BatteryMilliVolt float64   `json:"batteryMilliVolts"`
	Time             string    `json:"time"`
}

// LocationPoint is one sample in a vehicle's location history.
type LocationPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speedMilesPerHour"`
	Heading   float64 `json:"headingDegrees"`
	Time      string  `json:"time"`
}

// VehicleLocationHistory is the sampled GPS track for one vehicle over
// a requested window.
type VehicleLocationHistory struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Locations []LocationPoint `json:"locations"`
}

// SavedAddress is a stored organization address (depot, customer site).
// The API nests an optional circular geofence; it is flattened here to
// a center point plus radius.
type SavedAddress struct {
	ID               string
	Name             string
	FormattedAddress string
	Latitude         float64
	Longitude        float64
	RadiusMeters     int64
}

type savedAddressWire struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	FormattedAddress string `json:"formattedAddress"`
	Geofence         struct {
		Circle struct {
			Latitude     float64 `json:"latitude"`
			Longitude    float64 `json:"longitude"`
			RadiusMeters int64   `json:"radiusMeters"`
		} `json:"circle"`
	} `json:"geofence"`
}

func (a *SavedAddress) UnmarshalJSON(b []byte) error {
	var w savedAddressWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	a.ID = w.ID
	a.Name = w.Name
	a.FormattedAddress = w.FormattedAddress
	a.Latitude = w.Geofence.Circle.Latitude
	a.Longitude = w.Geofence.Circle.Longitude
	a.RadiusMeters = w.Geofence.Circle.RadiusMeters
	return nil
}

func (a SavedAddress) MarshalJSON() ([]byte, error) {
	var w savedAddressWire
	w.ID = a.ID
	w.Name = a.Name
	w.FormattedAddress = a.FormattedAddress
	w.Geofence.Circle.Latitude = a.Latitude
	w.Geofence.Circle.Longitude = a.Longitude
	w.Geofence.Circle.RadiusMeters = a.RadiusMeters
	return json.Marshal(w)
}

// Route is a planned dispatch route from the routes endpoint.
type Route struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Driver        EntityRef `json:"driver"`
	ScheduledTime string    `json:"scheduledRouteStartTime"`
	StopCount     int       `json:"stopCount"`
}

// FleetSummary is a snapshot of fleet size and activity, composed from
// the vehicles and trips endpoints.
type FleetSummary struct {
	VehicleCount int       `json:"vehicleCount"`
	DriverCount  int       `json:"driverCount"`
	ActiveTrips  int       `json:"activeTrips"`
	GeneratedAt  time.Time `json:"generatedAt"`
}
