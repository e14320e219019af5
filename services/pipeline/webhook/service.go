// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package webhook receives Samsara event callbacks: it verifies the
// HMAC signature, deduplicates events, routes them by category to
// worksheet upserts, and posts trip milestones to Slack.
package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/pepmove/pepworkday/services/pipeline/sheets"
	"github.com/pepmove/pepworkday/services/pipeline/slack"
	"github.com/pepmove/pepworkday/services/pipeline/state"
	"github.com/pepmove/pepworkday/services/pipeline/table"
	"github.com/pepmove/pepworkday/services/pipeline/telemetry"
)

const (
	// TripEventsWorksheet receives trip, driver, and maintenance events.
	TripEventsWorksheet = "TripEvents"

	// LocationUpdatesWorksheet receives vehicle and geofence events.
	LocationUpdatesWorksheet = "LocationUpdates"

	dedupDataType = "webhook_events"
)

// SheetWriter is the subset of the sheets client the service uses.
type SheetWriter interface {
	UpsertTo(ctx context.Context, worksheet string, t *table.Table, key string) (*sheets.Result, error)
}

// ServiceConfig holds webhook processing settings.
type ServiceConfig struct {
	// Secret verifies inbound signatures. Required.
	Secret string

	// DedupTTL is how long event marks persist.
	DedupTTL time.Duration
}

// Service processes verified webhook events. Safe for concurrent use.
type Service struct {
	cfg      ServiceConfig
	store    *state.Store
	writer   SheetWriter
	notifier *slack.Notifier
	log      *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewService creates a webhook processing service. notifier may be nil.
func NewService(cfg ServiceConfig, store *state.Store, writer SheetWriter, notifier *slack.Notifier) *Service {
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = state.DefaultDedupTTL
	}
	return &Service{
		cfg:      cfg,
		store:    store,
		writer:   writer,
		notifier: notifier,
		log:      slog.Default().With("component", "webhook"),
		stats:    Stats{ByCategory: make(map[string]int)},
	}
}

// Secret returns the configured signing secret.
func (s *Service) Secret() []byte {
	return []byte(s.cfg.Secret)
}

// Stats returns a snapshot of processing counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.stats
	snap.ByCategory = make(map[string]int, len(s.stats.ByCategory))
	for k, v := range s.stats.ByCategory {
		snap.ByCategory[k] = v
	}
	return snap
}

func (s *Service) count(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

// Process handles one verified event.
//
// Description:
//
//	Deduplicates on the event id (payload hash when absent), then
//	routes by category: trip, driver, and maintenance events land in
//	the TripEvents worksheet; vehicle and geofence events land in
//	LocationUpdates; unknown events are logged and counted only.
//	Trip start and completion also notify Slack.
//
// Outputs:
//
//	bool - True when the event was new and processed
//	error - Storage or worksheet failure
func (s *Service) Process(ctx context.Context, ev Event, payload []byte) (bool, error) {
	s.count(func(st *Stats) { st.Received++ })

	hash := state.HashPayload(payload)
	if ev.EventID != "" {
		hash = state.HashFields("event", ev.EventID)
	}
	seen, err := s.store.Seen(ctx, dedupDataType, hash)
	if err != nil {
		s.count(func(st *Stats) { st.Errors++ })
		return false, fmt.Errorf("dedup event: %w", err)
	}
	if seen {
		s.count(func(st *Stats) { st.Duplicates++ })
		telemetry.WebhookEvents.WithLabelValues(ev.EventType, "duplicate").Inc()
		s.log.Debug("duplicate event dropped", "event_id", ev.EventID, "event_type", ev.EventType)
		return false, nil
	}

	category := Categorize(ev.EventType)
	s.count(func(st *Stats) { st.ByCategory[string(category)]++ })

	var werr error
	switch category {
	case CategoryVehicle, CategoryGeofence:
		werr = s.writeLocationUpdate(ctx, ev, hash, category)
	case CategoryUnknown:
		s.log.Warn("unrecognized event type", "event_type", ev.EventType, "event_id", ev.EventID)
	default:
		werr = s.writeTripEvent(ctx, ev, hash, category)
	}
	if werr != nil {
		// Left unmarked so Samsara's retry of the 500 can land the
		// event instead of being dropped as a duplicate.
		s.count(func(st *Stats) { st.Errors++ })
		telemetry.WebhookEvents.WithLabelValues(ev.EventType, "error").Inc()
		return false, werr
	}
	if _, err := s.store.MarkSeen(ctx, dedupDataType, hash, s.cfg.DedupTTL); err != nil {
		s.log.Warn("failed to mark event seen", "event_id", ev.EventID, "error", err)
	}

	if notifiable(ev.EventType) && s.notifier != nil {
		_ = s.notifier.Post(ctx, slack.Message{
			Text: fmt.Sprintf("%s: driver %s, vehicle %s",
				ev.EventType, ev.Data.Driver.Name, ev.Data.Vehicle.Name),
		})
	}

	s.count(func(st *Stats) { st.Processed++ })
	telemetry.WebhookEvents.WithLabelValues(ev.EventType, "processed").Inc()
	return true, nil
}

// Rejected counts a request that failed signature or parse checks.
func (s *Service) Rejected(eventType string) {
	s.count(func(st *Stats) { st.Rejected++ })
	telemetry.WebhookEvents.WithLabelValues(eventType, "rejected").Inc()
}

func (s *Service) writeTripEvent(ctx context.Context, ev Event, hash string, category Category) error {
	t := table.New(
		"_kp_record_id", "event_id", "event_type", "category", "event_time",
		"trip_id", "driver_id", "driver_name", "vehicle_id", "vehicle_name",
		"received_at",
	)
	t.AppendRow([]string{
		hash, ev.EventID, ev.EventType, string(category), ev.EventTime,
		ev.Data.TripID, ev.Data.Driver.ID, ev.Data.Driver.Name,
		ev.Data.Vehicle.ID, ev.Data.Vehicle.Name,
		time.Now().UTC().Format(time.RFC3339),
	})
	res, err := s.writer.UpsertTo(ctx, TripEventsWorksheet, t, "_kp_record_id")
	if err != nil {
		return fmt.Errorf("write trip event: %w", err)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("write trip event: %w", res.Errors[0])
	}
	return nil
}

func (s *Service) writeLocationUpdate(ctx context.Context, ev Event, hash string, category Category) error {
	t := table.New(
		"_kp_record_id", "event_id", "event_type", "category", "event_time",
		"vehicle_id", "vehicle_name", "latitude", "longitude", "address",
		"geofence_name", "received_at",
	)
	t.AppendRow([]string{
		hash, ev.EventID, ev.EventType, string(category), ev.EventTime,
		ev.Data.Vehicle.ID, ev.Data.Vehicle.Name,
		strconv.FormatFloat(ev.Data.Latitude, 'f', -1, 64),
		strconv.FormatFloat(ev.Data.Longitude, 'f', -1, 64),
		ev.Data.Address, ev.Data.GeofenceName,
		time.Now().UTC().Format(time.RFC3339),
	})
	res, err := s.writer.UpsertTo(ctx, LocationUpdatesWorksheet, t, "_kp_record_id")
	if err != nil {
		return fmt.Errorf("write location update: %w", err)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("write location update: %w", res.Errors[0])
	}
	return nil
}
