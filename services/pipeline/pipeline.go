// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the dispatch sync: load and normalize
// the dispatch workbook, fetch Samsara trip actuals, reconcile the
// two, and upsert the enriched rows to Google Sheets. Runs are guarded
// by a state-store lock so overlapping invocations cannot interleave
// their read-plan-write cycles.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pepmove/pepworkday/services/pipeline/archive"
	"github.com/pepmove/pepworkday/services/pipeline/dispatch"
	"github.com/pepmove/pepworkday/services/pipeline/enrich"
	"github.com/pepmove/pepworkday/services/pipeline/monitor"
	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/sheets"
	"github.com/pepmove/pepworkday/services/pipeline/slack"
	"github.com/pepmove/pepworkday/services/pipeline/state"
	"github.com/pepmove/pepworkday/services/pipeline/table"
	"github.com/pepmove/pepworkday/services/pipeline/telemetry"
)

// ErrRunLocked is returned when another sync holds the run lock.
var ErrRunLocked = errors.New("another sync run is in progress")

const (
	runLockName  = "sync"
	runLockLease = 30 * time.Minute
)

// FleetAPI is the subset of the Samsara client the pipeline uses.
type FleetAPI interface {
	FetchTrips(ctx context.Context, start, end time.Time) ([]samsara.Trip, error)
	FetchVehicleLocations(ctx context.Context) ([]samsara.VehicleLocation, error)
	FetchFleetSummary(ctx context.Context) (*samsara.FleetSummary, error)
}

// SheetWriter is the subset of the sheets client the pipeline uses.
type SheetWriter interface {
	UpsertTo(ctx context.Context, worksheet string, t *table.Table, key string) (*sheets.Result, error)
}

// Options selects inputs and behavior for one run.
type Options struct {
	// InputFile is the dispatch workbook path. Required.
	InputFile string

	// Sheet selects a worksheet in the workbook; empty takes the first.
	Sheet string

	// SamsaraFile, when set, reads trip actuals from a file export
	// instead of the API.
	SamsaraFile string

	// Worksheet is the destination; empty takes the client default.
	Worksheet string

	// Window for API trip fetch. Zero values default to the previous
	// 24 hours.
	WindowStart time.Time
	WindowEnd   time.Time

	// DryRun runs every stage except external writes: no sheet
	// writes, no archive upload, no Slack summary.
	DryRun bool

	// IncludeLocations also snapshots vehicle GPS to its worksheet.
	IncludeLocations bool

	// IncludeFleetSummary adds a fleet snapshot to the Slack summary.
	IncludeFleetSummary bool
}

// Result summarizes one run.
type Result struct {
	Rows       int
	Inserted   int
	Updated    int
	Skipped    int
	MatchRate  float64
	Errors     []error
	Duration   time.Duration
	ArchiveURI string
	DryRun     bool
}

// Service wires the pipeline stages together. All collaborators
// except the API, the writer, and the store may be nil.
type Service struct {
	api      FleetAPI
	writer   SheetWriter
	store    *state.Store
	notifier *slack.Notifier
	alerter  *monitor.Alerter
	sink     *monitor.Sink
	archiver *archive.Archiver
	log      *slog.Logger
	now      func() time.Time
}

// New assembles a pipeline Service.
func New(api FleetAPI, writer SheetWriter, store *state.Store, notifier *slack.Notifier) *Service {
	return &Service{
		api:      api,
		writer:   writer,
		store:    store,
		notifier: notifier,
		log:      slog.Default().With("component", "pipeline"),
		now:      time.Now,
	}
}

// WithAlerter attaches failure alerting.
func (s *Service) WithAlerter(a *monitor.Alerter) *Service {
	s.alerter = a
	return s
}

// WithSink attaches the InfluxDB run-metrics sink.
func (s *Service) WithSink(sink *monitor.Sink) *Service {
	s.sink = sink
	return s
}

// WithArchiver attaches workbook archival.
func (s *Service) WithArchiver(a *archive.Archiver) *Service {
	s.archiver = a
	return s
}

// Run executes one sync.
//
// Description:
//
//	Stages: acquire the run lock, load and validate the workbook,
//	normalize it, obtain trip actuals (file or API), enrich, upsert,
//	then archive and notify. Stage failures release the lock, alert,
//	and return the error. Partial upsert batch failures are carried
//	in the Result rather than failing the run.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	start := s.now()
	owner := uuid.NewString()

	ok, err := s.store.AcquireLock(ctx, runLockName, owner, runLockLease)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		telemetry.RunsTotal.WithLabelValues("locked").Inc()
		return nil, ErrRunLocked
	}
	defer func() {
		if err := s.store.ReleaseLock(context.WithoutCancel(ctx), runLockName, owner); err != nil {
			s.log.Warn("failed to release run lock", "error", err)
		}
	}()

	res, err := s.run(ctx, opts, start)
	if err != nil {
		telemetry.RunsTotal.WithLabelValues("error").Inc()
		s.fail(ctx, err)
		return nil, err
	}

	telemetry.RunsTotal.WithLabelValues("success").Inc()
	telemetry.RunDuration.Observe(res.Duration.Seconds())
	if s.sink != nil && !opts.DryRun {
		point := monitor.RunPoint{
			Status:    "success",
			Rows:      res.Rows,
			Inserted:  res.Inserted,
			Updated:   res.Updated,
			Errors:    len(res.Errors),
			MatchRate: res.MatchRate,
			Duration:  res.Duration,
		}
		if err := s.sink.WriteRun(ctx, point); err != nil {
			s.log.Warn("failed to record run metrics", "error", err)
		}
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, opts Options, start time.Time) (*Result, error) {
	tbl, err := dispatch.Load(opts.InputFile, dispatch.LoadOptions{Sheet: opts.Sheet})
	if err != nil {
		return nil, err
	}
	dispatch.Normalize(tbl, s.now())

	validation := dispatch.DispatchSchema.Validate(tbl)
	for _, w := range validation.Warnings {
		s.log.Warn("dispatch schema warning", "warning", w)
	}
	if err := validation.Err(); err != nil {
		return nil, err
	}

	trips, err := s.actuals(ctx, opts)
	if err != nil {
		return nil, err
	}
	metrics := enrich.Enrich(tbl, trips, enrich.Options{})

	res := &Result{
		Rows:      tbl.Len(),
		MatchRate: metrics.MatchRate,
		DryRun:    opts.DryRun,
	}

	if opts.DryRun {
		res.Duration = s.now().Sub(start)
		s.log.Info("dry run complete", "rows", res.Rows, "match_rate", res.MatchRate)
		return res, nil
	}

	worksheet := opts.Worksheet
	if worksheet == "" {
		worksheet = sheets.DefaultWorksheet
	}
	up, err := s.writer.UpsertTo(ctx, worksheet, tbl, dispatch.KeyColumn)
	if err != nil {
		return nil, err
	}
	res.Inserted = up.Inserted
	res.Updated = up.Updated
	res.Skipped = up.Skipped
	res.Errors = append(res.Errors, up.Errors...)
	telemetry.RowsWritten.WithLabelValues(worksheet, "insert").Add(float64(up.Inserted))
	telemetry.RowsWritten.WithLabelValues(worksheet, "update").Add(float64(up.Updated))

	if opts.IncludeLocations {
		if err := s.snapshotLocations(ctx); err != nil {
			s.log.Warn("location snapshot failed", "error", err)
			res.Errors = append(res.Errors, err)
		}
	}

	if s.archiver != nil {
		uri, err := s.archiver.Upload(ctx, opts.InputFile)
		if err != nil {
			s.log.Warn("workbook archive failed", "error", err)
			res.Errors = append(res.Errors, err)
		} else {
			res.ArchiveURI = uri
		}
	}

	res.Duration = s.now().Sub(start)
	s.notify(ctx, opts, res, worksheet)
	return res, nil
}

// actuals obtains Samsara trips from a file export or the API.
func (s *Service) actuals(ctx context.Context, opts Options) ([]samsara.Trip, error) {
	if opts.SamsaraFile != "" {
		tbl, err := dispatch.LoadTabular(opts.SamsaraFile)
		if err != nil {
			return nil, err
		}
		dispatch.Normalize(tbl, s.now())
		if err := dispatch.SamsaraFileSchema.Validate(tbl).Err(); err != nil {
			return nil, err
		}
		return tableToTrips(tbl), nil
	}

	end := opts.WindowEnd
	if end.IsZero() {
		end = s.now()
	}
	startT := opts.WindowStart
	if startT.IsZero() {
		startT = end.Add(-24 * time.Hour)
	}
	return s.api.FetchTrips(ctx, startT, end)
}

// tableToTrips maps a normalized Samsara file export onto trip
// records, reversing the minute and gallon conversions the API path
// performs.
func tableToTrips(t *table.Table) []samsara.Trip {
	trips := make([]samsara.Trip, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		cell := func(col string) string {
			v, _ := t.Cell(i, col)
			return v
		}
		tr := samsara.Trip{ID: cell("trip_id")}
		tr.Driver.ID = cell("driver_id")
		tr.Driver.Name = cell("driver_name")
		if tr.Driver.Name == "" {
			tr.Driver.Name = tr.Driver.ID
		}
		tr.Vehicle.ID = cell("vehicle_id")

		if d := cell("trip_date"); d != "" {
			tr.StartTime = d + "T00:00:00Z"
		}
		if v, ok := t.Float(i, "total_miles"); ok {
			tr.DistanceMiles = v
		}
		if v, ok := t.Float(i, "idle_time"); ok {
			tr.IdleTimeMs = int64(v * 60000)
		}
		if v, ok := t.Float(i, "fuel_used"); ok {
			tr.FuelConsumedMl = v * 3785.41
		}
		if v := cell("stops_count"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				tr.StopCount = n
			}
		}
		trips = append(trips, tr)
	}
	return trips
}

// snapshotLocations upserts the current vehicle GPS readings.
func (s *Service) snapshotLocations(ctx context.Context) error {
	locs, err := s.api.FetchVehicleLocations(ctx)
	if err != nil {
		return fmt.Errorf("fetch locations: %w", err)
	}
	tbl := samsara.LocationsToTable(locs)
	tbl.AddColumn("_kp_record_id")
	for i := 0; i < tbl.Len(); i++ {
		v, _ := tbl.Cell(i, "vehicle_id")
		ts, _ := tbl.Cell(i, "location_time")
		tbl.SetCell(i, "_kp_record_id", state.HashFields("location", v, ts))
	}

	res, err := s.writer.UpsertTo(ctx, "PolledLocations", tbl, "_kp_record_id")
	if err != nil {
		return fmt.Errorf("upsert locations: %w", err)
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("upsert locations: %w", res.Errors[0])
	}
	return nil
}

func (s *Service) notify(ctx context.Context, opts Options, res *Result, worksheet string) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	summary := slack.RunSummary{
		Worksheet:  worksheet,
		Rows:       res.Rows,
		Inserted:   res.Inserted,
		Updated:    res.Updated,
		Skipped:    res.Skipped,
		MatchRate:  res.MatchRate,
		Errors:     len(res.Errors),
		Duration:   res.Duration,
		DryRun:     res.DryRun,
		SourceFile: opts.InputFile,
	}
	if err := s.notifier.NotifySummary(ctx, summary); err != nil {
		s.log.Warn("summary notification failed", "error", err)
	}

	if opts.IncludeFleetSummary {
		fs, err := s.api.FetchFleetSummary(ctx)
		if err != nil {
			s.log.Warn("fleet summary fetch failed", "error", err)
			return
		}
		_ = s.notifier.Post(ctx, slack.Message{
			Text: fmt.Sprintf("Fleet snapshot: %d vehicles, %d drivers, %d active trips",
				fs.VehicleCount, fs.DriverCount, fs.ActiveTrips),
		})
	}
}

func (s *Service) fail(ctx context.Context, err error) {
	if s.alerter != nil {
		s.alerter.Report(ctx, monitor.Alert{
			Source:  "pipeline",
			Message: "dispatch sync failed",
			Err:     err,
		})
		return
	}
	if s.notifier != nil {
		_ = s.notifier.NotifyError(ctx, "sync", err)
	}
}
