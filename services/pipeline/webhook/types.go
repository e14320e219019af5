// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package webhook

import "strings"

// Event is the envelope Samsara posts to the webhook endpoint.
type Event struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	EventTime string    `json:"eventTime"`
	OrgID     string    `json:"orgId"`
	Data      EventData `json:"data"`
}

// EventData carries the entity references and readings attached to an
// event. Fields not relevant to a given event type arrive zeroed.
type EventData struct {
	Driver struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"driver"`
	Vehicle struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"vehicle"`
	TripID       string  `json:"tripId"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	Address      string  `json:"address"`
	GeofenceName string  `json:"geofenceName"`
}

// Category groups event types for routing.
type Category string

const (
	CategoryTrip        Category = "trip"
	CategoryVehicle     Category = "vehicle"
	CategoryDriver      Category = "driver"
	CategoryGeofence    Category = "geofence"
	CategoryMaintenance Category = "maintenance"
	CategoryUnknown     Category = "unknown"
)

// Categorize maps an event type name to its Category by keyword.
// Samsara event names are camelCase (tripStarted, geofenceEntry), so
// matching is case-insensitive on substrings.
func Categorize(eventType string) Category {
	s := strings.ToLower(eventType)
	switch {
	case strings.Contains(s, "trip"):
		return CategoryTrip
	case strings.Contains(s, "geofence"):
		return CategoryGeofence
	case strings.Contains(s, "maintenance") || strings.Contains(s, "fault") || strings.Contains(s, "dvir"):
		return CategoryMaintenance
	case strings.Contains(s, "vehicle") || strings.Contains(s, "location") || strings.Contains(s, "gps"):
		return CategoryVehicle
	case strings.Contains(s, "driver") || strings.Contains(s, "hos") || strings.Contains(s, "duty"):
		return CategoryDriver
	default:
		return CategoryUnknown
	}
}

// notifiableTypes are trip milestones worth a Slack message.
func notifiable(eventType string) bool {
	switch eventType {
	case "tripStarted", "tripCompleted":
		return true
	default:
		return false
	}
}

// Stats counts received events since startup.
type Stats struct {
	Received   int            `json:"received"`
	Processed  int            `json:"processed"`
	Duplicates int            `json:"duplicates"`
	Rejected   int            `json:"rejected"`
	Errors     int            `json:"errors"`
	ByCategory map[string]int `json:"by_category"`
}
