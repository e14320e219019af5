// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pepmove/pepworkday/services/pipeline/dispatch"
	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/sheets"
	"github.com/pepmove/pepworkday/services/pipeline/state"
	"github.com/pepmove/pepworkday/services/pipeline/table"
)

type fakeAPI struct {
	trips []samsara.Trip
	locs  []samsara.VehicleLocation
}

func (f *fakeAPI) FetchTrips(ctx context.Context, start, end time.Time) ([]samsara.Trip, error) {
	return f.trips, nil
}

func (f *fakeAPI) FetchVehicleLocations(ctx context.Context) ([]samsara.VehicleLocation, error) {
	return f.locs, nil
}

func (f *fakeAPI) FetchFleetSummary(ctx context.Context) (*samsara.FleetSummary, error) {
	return &samsara.FleetSummary{VehicleCount: len(f.locs)}, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	upserts map[string][]*table.Table
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{upserts: make(map[string][]*table.Table)}
}

func (f *fakeWriter) UpsertTo(ctx context.Context, worksheet string, t *table.Table, key string) (*sheets.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts[worksheet] = append(f.upserts[worksheet], t)
	return &sheets.Result{Worksheet: worksheet, Inserted: t.Len()}, nil
}

func (f *fakeWriter) count(worksheet string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts[worksheet])
}

func writeWorkbook(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			ref, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, ref, cell))
		}
	}
	path := filepath.Join(t.TempDir(), "dispatch.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func dispatchWorkbook(t *testing.T) string {
	return writeWorkbook(t, [][]string{
		{"Driver Name", "Route ID", "Planned Miles", "Planned Stops", "Date"},
		{"John Smith", "R1", "100", "10", "2025-06-01"},
		{"Mary Jones", "R2", "80", "8", "2025-06-01"},
	})
}

func testService(t *testing.T, api FleetAPI, writer SheetWriter) *Service {
	t.Helper()
	store, err := state.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(api, writer, store, nil)
}

func apiTrips() []samsara.Trip {
	return []samsara.Trip{{
		ID:            "t1",
		Driver:        samsara.EntityRef{ID: "d1", Name: "John Smith"},
		StartTime:     "2025-06-01T07:00:00Z",
		DistanceMiles: 110,
		StopCount:     11,
	}}
}

func TestRunEndToEnd(t *testing.T) {
	writer := newFakeWriter()
	svc := testService(t, &fakeAPI{trips: apiTrips()}, writer)

	res, err := svc.Run(context.Background(), Options{InputFile: dispatchWorkbook(t)})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, 2, res.Inserted)
	assert.InDelta(t, 0.5, res.MatchRate, 1e-9)
	assert.Empty(t, res.Errors)

	require.Equal(t, 1, writer.count(sheets.DefaultWorksheet))
	tbl := writer.upserts[sheets.DefaultWorksheet][0]
	assert.True(t, tbl.HasColumn(dispatch.KeyColumn))
	assert.True(t, tbl.HasColumn("samsara_miles"))

	mv, ok := tbl.Float(0, "miles_variance")
	require.True(t, ok)
	assert.Equal(t, 10.0, mv)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	writer := newFakeWriter()
	svc := testService(t, &fakeAPI{trips: apiTrips()}, writer)

	res, err := svc.Run(context.Background(), Options{
		InputFile: dispatchWorkbook(t),
		DryRun:    true,
	})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.Rows)
	assert.Zero(t, res.Inserted)
	assert.Zero(t, writer.count(sheets.DefaultWorksheet))
}

func TestRunLockContention(t *testing.T) {
	writer := newFakeWriter()
	svc := testService(t, &fakeAPI{}, writer)
	ctx := context.Background()

	ok, err := svc.store.AcquireLock(ctx, runLockName, "other-run", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Run(ctx, Options{InputFile: dispatchWorkbook(t)})
	assert.ErrorIs(t, err, ErrRunLocked)
}

func TestRunReleasesLock(t *testing.T) {
	writer := newFakeWriter()
	svc := testService(t, &fakeAPI{trips: apiTrips()}, writer)
	ctx := context.Background()

	_, err := svc.Run(ctx, Options{InputFile: dispatchWorkbook(t)})
	require.NoError(t, err)

	// A second run can take the lock again.
	_, err = svc.Run(ctx, Options{InputFile: dispatchWorkbook(t)})
	require.NoError(t, err)
}

func TestRunSchemaViolation(t *testing.T) {
	path := writeWorkbook(t, [][]string{
		{"Driver Name", "Route ID"},
		{"John Smith", "R1"},
	})
	svc := testService(t, &fakeAPI{}, newFakeWriter())

	_, err := svc.Run(context.Background(), Options{InputFile: path})
	assert.ErrorIs(t, err, dispatch.ErrSchemaViolation)
}

func TestRunMissingInput(t *testing.T) {
	svc := testService(t, &fakeAPI{}, newFakeWriter())
	_, err := svc.Run(context.Background(), Options{InputFile: "/nope/dispatch.xlsx"})
	assert.ErrorIs(t, err, dispatch.ErrFileNotFound)
}

func TestRunWithSamsaraFile(t *testing.T) {
	samsaraFile := filepath.Join(t.TempDir(), "actuals.csv")
	data := "driver_id,driver_name,trip_date,total_miles,idle_time,stops_count\n" +
		"d1,John Smith,2025-06-01,95,20,9\n"
	require.NoError(t, os.WriteFile(samsaraFile, []byte(data), 0o644))

	writer := newFakeWriter()
	svc := testService(t, &fakeAPI{}, writer)

	res, err := svc.Run(context.Background(), Options{
		InputFile:   dispatchWorkbook(t),
		SamsaraFile: samsaraFile,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, res.MatchRate, 1e-9)

	tbl := writer.upserts[sheets.DefaultWorksheet][0]
	miles, ok := tbl.Float(0, "samsara_miles")
	require.True(t, ok)
	assert.Equal(t, 95.0, miles)
	idle, ok := tbl.Float(0, "samsara_idle_minutes")
	require.True(t, ok)
	assert.Equal(t, 20.0, idle)

	// The file export's stops_count column carries through to the
	// stops variance (9 actual vs 10 planned).
	stops, ok := tbl.Float(0, "samsara_stops")
	require.True(t, ok)
	assert.Equal(t, 9.0, stops)
	sv, ok := tbl.Float(0, "stops_variance")
	require.True(t, ok)
	assert.Equal(t, -1.0, sv)
}

func TestRunIncludeLocations(t *testing.T) {
	api := &fakeAPI{trips: apiTrips(), locs: []samsara.VehicleLocation{{ID: "v1", Name: "Truck 7"}}}
	writer := newFakeWriter()
	svc := testService(t, api, writer)

	_, err := svc.Run(context.Background(), Options{
		InputFile:        dispatchWorkbook(t),
		IncludeLocations: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, writer.count("PolledLocations"))
}

func TestTableToTrips(t *testing.T) {
	tbl := table.New("driver_id", "trip_date", "total_miles", "idle_time", "fuel_used", "stops_count")
	tbl.AppendRow([]string{"d1", "2025-06-01", "120.5", "15", "2", "12"})

	trips := tableToTrips(tbl)
	require.Len(t, trips, 1)

	tr := trips[0]
	assert.Equal(t, "d1", tr.Driver.ID)
	assert.Equal(t, "d1", tr.Driver.Name)
	assert.Equal(t, "2025-06-01T00:00:00Z", tr.StartTime)
	assert.Equal(t, "2025-06-01", tr.TripDate())
	assert.Equal(t, 120.5, tr.DistanceMiles)
	assert.Equal(t, int64(900000), tr.IdleTimeMs)
	assert.InDelta(t, 7570.82, tr.FuelConsumedMl, 1e-6)
	assert.Equal(t, 12, tr.StopCount)
}
