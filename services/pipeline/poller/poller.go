// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package poller periodically pulls Samsara fleet data, deduplicates
// it against the state store, and upserts new records to per-type
// worksheets. Poll windows overlap the previous cycle so late-arriving
// records are not missed; the dedup marks keep the overlap from
// producing duplicate rows.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/sheets"
	"github.com/pepmove/pepworkday/services/pipeline/slack"
	"github.com/pepmove/pepworkday/services/pipeline/state"
	"github.com/pepmove/pepworkday/services/pipeline/table"
	"github.com/pepmove/pepworkday/services/pipeline/telemetry"
)

// RecordKeyColumn keys polled rows for worksheet upserts.
const RecordKeyColumn = "_kp_record_id"

// DataType selects a Samsara data family to poll.
type DataType string

const (
	DataTypeTrips        DataType = "trips"
	DataTypeLocations    DataType = "locations"
	DataTypeDriverStats  DataType = "driver_stats"
	DataTypeVehicleStats DataType = "vehicle_stats"
)

// AllDataTypes lists every pollable family.
var AllDataTypes = []DataType{
	DataTypeTrips, DataTypeLocations, DataTypeDriverStats, DataTypeVehicleStats,
}

// WorksheetFor maps a data type to its destination worksheet.
func WorksheetFor(dt DataType) string {
	switch dt {
	case DataTypeTrips:
		return "PolledTrips"
	case DataTypeLocations:
		return "PolledLocations"
	case DataTypeDriverStats:
		return "PolledDriverStats"
	case DataTypeVehicleStats:
		return "PolledVehicleStats"
	default:
		return "Polled" + string(dt)
	}
}

// API is the subset of the Samsara client the poller uses.
type API interface {
	FetchTrips(ctx context.Context, start, end time.Time) ([]samsara.Trip, error)
	FetchVehicleLocations(ctx context.Context) ([]samsara.VehicleLocation, error)
	FetchDriverStats(ctx context.Context, start, end time.Time) ([]samsara.DriverStats, error)
	FetchVehicleStats(ctx context.Context) ([]samsara.VehicleStats, error)
}

// SheetWriter is the subset of the sheets client the poller uses.
type SheetWriter interface {
	UpsertTo(ctx context.Context, worksheet string, t *table.Table, key string) (*sheets.Result, error)
}

// Config tunes polling behavior.
type Config struct {
	// DataTypes to poll. Defaults to AllDataTypes.
	DataTypes []DataType

	// Interval between cycles in continuous mode.
	Interval time.Duration

	// DedupTTL is how long record marks persist.
	DedupTTL time.Duration
}

// DefaultConfig polls everything every five minutes.
func DefaultConfig() Config {
	return Config{
		DataTypes: AllDataTypes,
		Interval:  5 * time.Minute,
		DedupTTL:  state.DefaultDedupTTL,
	}
}

// TypeMetrics counts one data type's cycle outcome.
type TypeMetrics struct {
	Fetched    int
	New        int
	Duplicates int
	Upserted   int
	Err        error
}

// Metrics summarizes one poll cycle across data types.
type Metrics struct {
	BatchID string
	Types   map[DataType]TypeMetrics
	Elapsed time.Duration
}

// Failed lists data types whose cycle errored.
func (m Metrics) Failed() []DataType {
	var out []DataType
	for dt, tm := range m.Types {
		if tm.Err != nil {
			out = append(out, dt)
		}
	}
	return out
}

// Poller drives the poll cycles. Safe for concurrent use, though one
// running cycle at a time is the intended mode.
type Poller struct {
	cfg      Config
	api      API
	writer   SheetWriter
	store    *state.Store
	notifier *slack.Notifier
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Poller. notifier may be nil.
func New(cfg Config, api API, writer SheetWriter, store *state.Store, notifier *slack.Notifier) *Poller {
	def := DefaultConfig()
	if len(cfg.DataTypes) == 0 {
		cfg.DataTypes = def.DataTypes
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.DedupTTL <= 0 {
		cfg.DedupTTL = def.DedupTTL
	}
	return &Poller{
		cfg:      cfg,
		api:      api,
		writer:   writer,
		store:    store,
		notifier: notifier,
		log:      slog.Default().With("component", "poller"),
		now:      time.Now,
	}
}

// PollOnce runs one cycle over all configured data types concurrently.
//
// Description:
//
//	Each data type fetches its window, drops records already marked in
//	the state store, stamps survivors with the cycle batch id and
//	timestamp, and upserts them to the type's worksheet. A failing
//	type records its error in the metrics without stopping the others.
func (p *Poller) PollOnce(ctx context.Context) (*Metrics, error) {
	start := p.now()
	m := &Metrics{
		BatchID: uuid.NewString(),
		Types:   make(map[DataType]TypeMetrics, len(p.cfg.DataTypes)),
	}

	results := make([]TypeMetrics, len(p.cfg.DataTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, dt := range p.cfg.DataTypes {
		g.Go(func() error {
			results[i] = p.pollType(gctx, dt, m.BatchID, start)
			return nil
		})
	}
	// Worker errors land in per-type metrics, never in the group.
	_ = g.Wait()

	for i, dt := range p.cfg.DataTypes {
		m.Types[dt] = results[i]
	}
	m.Elapsed = p.now().Sub(start)

	p.log.Info("poll cycle complete", "batch_id", m.BatchID,
		"types", len(m.Types), "failed", len(m.Failed()), "elapsed", m.Elapsed)
	return m, ctx.Err()
}

// Run polls continuously until ctx is cancelled. Cycle failures are
// reported to Slack and the loop keeps going.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("starting continuous polling",
		"interval", p.cfg.Interval, "data_types", len(p.cfg.DataTypes))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		m, err := p.PollOnce(ctx)
		if err != nil {
			return err
		}
		if failed := m.Failed(); len(failed) > 0 && p.notifier != nil {
			names := make([]string, len(failed))
			for i, dt := range failed {
				names[i] = string(dt)
			}
			_ = p.notifier.Post(ctx, slack.Message{
				Text: fmt.Sprintf("Polling errors in cycle %s: %v", m.BatchID, names),
			})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) pollType(ctx context.Context, dt DataType, batchID string, now time.Time) TypeMetrics {
	tm := TypeMetrics{}

	tbl, err := p.fetch(ctx, dt, now)
	if err != nil {
		tm.Err = err
		telemetry.PollRecords.WithLabelValues(string(dt), "error").Inc()
		p.log.Error("poll fetch failed", "data_type", dt, "error", err)
		return tm
	}
	tm.Fetched = tbl.Len()

	fresh, hashes, newCount, dupCount, err := p.dedup(ctx, dt, tbl)
	if err != nil {
		tm.Err = err
		return tm
	}
	tm.New = newCount
	tm.Duplicates = dupCount
	telemetry.PollRecords.WithLabelValues(string(dt), "new").Add(float64(newCount))
	telemetry.PollRecords.WithLabelValues(string(dt), "duplicate").Add(float64(dupCount))

	if fresh.Len() == 0 {
		p.markPolled(ctx, dt, now)
		return tm
	}

	stamp := now.UTC().Format(time.RFC3339)
	fresh.AddColumn("polling_timestamp")
	fresh.AddColumn("batch_id")
	for i := 0; i < fresh.Len(); i++ {
		fresh.SetCell(i, "polling_timestamp", stamp)
		fresh.SetCell(i, "batch_id", batchID)
	}

	res, err := p.writer.UpsertTo(ctx, WorksheetFor(dt), fresh, RecordKeyColumn)
	if err != nil {
		// Rows stay unmarked so the next cycle's window retries them.
		tm.Err = fmt.Errorf("upsert %s: %w", dt, err)
		return tm
	}
	tm.Upserted = res.Inserted + res.Updated
	telemetry.RowsWritten.WithLabelValues(WorksheetFor(dt), "insert").Add(float64(res.Inserted))
	telemetry.RowsWritten.WithLabelValues(WorksheetFor(dt), "update").Add(float64(res.Updated))
	if len(res.Errors) > 0 {
		tm.Err = fmt.Errorf("upsert %s: %d batch errors, first: %w", dt, len(res.Errors), res.Errors[0])
		return tm
	}

	p.markSeen(ctx, dt, hashes)
	p.markPolled(ctx, dt, now)
	return tm
}

// fetch pulls the data type's window and flattens it to a table.
// Windowed types look back twice the interval past the last cursor so
// records that landed during the previous cycle still get picked up.
func (p *Poller) fetch(ctx context.Context, dt DataType, now time.Time) (*table.Table, error) {
	start := now.Add(-2 * p.cfg.Interval)
	if last, ok, err := p.store.LastPoll(ctx, string(dt)); err != nil {
		return nil, err
	} else if ok {
		overlapped := last.Add(-p.cfg.Interval)
		if overlapped.Before(start) {
			start = overlapped
		}
	}

	switch dt {
	case DataTypeTrips:
		trips, err := p.api.FetchTrips(ctx, start, now)
		if err != nil {
			return nil, err
		}
		return samsara.TripsToTable(trips), nil
	case DataTypeLocations:
		locs, err := p.api.FetchVehicleLocations(ctx)
		if err != nil {
			return nil, err
		}
		return samsara.LocationsToTable(locs), nil
	case DataTypeDriverStats:
		stats, err := p.api.FetchDriverStats(ctx, start, now)
		if err != nil {
			return nil, err
		}
		return samsara.DriverStatsToTable(stats), nil
	case DataTypeVehicleStats:
		stats, err := p.api.FetchVehicleStats(ctx)
		if err != nil {
			return nil, err
		}
		return samsara.VehicleStatsToTable(stats), nil
	default:
		return nil, fmt.Errorf("unknown data type %q", dt)
	}
}

// dedup filters rows already marked in the state store and attaches
// the record key column to survivors. Survivor hashes are returned
// unmarked; marking waits until the upsert lands so a failed write
// does not swallow its window for the dedup TTL.
func (p *Poller) dedup(ctx context.Context, dt DataType, tbl *table.Table) (*table.Table, []string, int, int, error) {
	cols := append(append([]string(nil), tbl.Columns()...), RecordKeyColumn)
	fresh := table.New(cols...)

	var hashes []string
	inBatch := make(map[string]bool)
	newCount, dupCount := 0, 0
	for i := 0; i < tbl.Len(); i++ {
		hash := recordHash(dt, tbl, i)
		if inBatch[hash] {
			dupCount++
			continue
		}
		seen, err := p.store.Seen(ctx, string(dt), hash)
		if err != nil {
			return nil, nil, newCount, dupCount, fmt.Errorf("dedup %s: %w", dt, err)
		}
		if seen {
			dupCount++
			continue
		}
		inBatch[hash] = true
		newCount++
		hashes = append(hashes, hash)
		fresh.AppendRow(append(tbl.Row(i), hash))
	}
	return fresh, hashes, newCount, dupCount, nil
}

// markSeen records successfully upserted identities. A mark failure is
// logged only; the worst case is a redundant upsert next cycle, which
// the keyed plan already skips.
func (p *Poller) markSeen(ctx context.Context, dt DataType, hashes []string) {
	for _, h := range hashes {
		if _, err := p.store.MarkSeen(ctx, string(dt), h, p.cfg.DedupTTL); err != nil {
			p.log.Warn("failed to mark record seen", "data_type", dt, "hash", h, "error", err)
		}
	}
}

// recordHash derives the dedup identity for a row. Each data type has
// a natural identity; rows missing it fall back to hashing the whole
// row.
func recordHash(dt DataType, tbl *table.Table, row int) string {
	cell := func(col string) string {
		v, _ := tbl.Cell(row, col)
		return v
	}

	switch dt {
	case DataTypeTrips:
		if id := cell("trip_id"); id != "" {
			return state.HashFields("trip", id)
		}
	case DataTypeLocations:
		if v, t := cell("vehicle_id"), cell("location_time"); v != "" && t != "" {
			return state.HashFields("location", v, t)
		}
	case DataTypeDriverStats:
		if d := cell("driver_id"); d != "" {
			return state.HashFields("driver_stats", d)
		}
	case DataTypeVehicleStats:
		if v, t := cell("vehicle_id"), cell("reading_time"); v != "" {
			return state.HashFields("vehicle_stats", v, t)
		}
	}
	return state.HashFields(append([]string{string(dt)}, tbl.Row(row)...)...)
}

func (p *Poller) markPolled(ctx context.Context, dt DataType, now time.Time) {
	if err := p.store.SetLastPoll(ctx, string(dt), now); err != nil {
		p.log.Warn("failed to record poll cursor", "data_type", dt, "error", err)
	}
}
