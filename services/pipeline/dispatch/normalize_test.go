// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Driver Name", "driver_name"},
		{"  Planned Miles  ", "planned_miles"},
		{"Route-ID", "routeid"},
		{"Stops (Actual)", "stops_actual"},
		{"a___b", "a_b"},
		{"___", "unnamed_column"},
		{"", "unnamed_column"},
		{"UPPER", "upper"},
		// System key columns keep their leading underscore so a
		// re-ingested report joins back to its existing sheet rows.
		{KeyColumn, KeyColumn},
		{"_KP_Job_ID", "_kp_job_id"},
		{"_kp_record_id", "_kp_record_id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeColumnName(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeRenamesAndCoerces(t *testing.T) {
	tbl := table.New("Driver Name", "Planned Miles", "Date")
	tbl.AppendRow([]string{"Smith", "1,250.5", "06/01/2025"})
	tbl.AppendRow([]string{"Jones", "not-a-number", "garbage"})

	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	Normalize(tbl, now)

	assert.True(t, tbl.HasColumn("driver_name"))
	assert.True(t, tbl.HasColumn("planned_miles"))

	miles, ok := tbl.Float(0, "planned_miles")
	require.True(t, ok)
	assert.Equal(t, 1250.5, miles)

	// Unparseable numerics are blanked rather than passed through.
	_, ok = tbl.Float(1, "planned_miles")
	assert.False(t, ok)

	date, _ := tbl.Cell(0, "date")
	assert.Equal(t, "2025-06-01", date)
	// Unparseable dates are left as-is.
	date, _ = tbl.Cell(1, "date")
	assert.Equal(t, "garbage", date)
}

func TestNormalizeSynthesizesJobIDs(t *testing.T) {
	tbl := table.New("driver_name")
	tbl.AppendRow([]string{"Smith"})
	tbl.AppendRow([]string{"Jones"})

	now := time.Date(2025, 6, 2, 8, 30, 15, 0, time.UTC)
	Normalize(tbl, now)

	require.True(t, tbl.HasColumn(KeyColumn))
	id0, _ := tbl.Cell(0, KeyColumn)
	id1, _ := tbl.Cell(1, KeyColumn)
	assert.Equal(t, "job_20250602_083015_000000", id0)
	assert.Equal(t, "job_20250602_083015_000001", id1)
}

func TestNormalizePreservesExistingJobIDs(t *testing.T) {
	tbl := table.New("driver_name", KeyColumn)
	tbl.AppendRow([]string{"Smith", "job_existing_1"})

	Normalize(tbl, time.Now())

	id, _ := tbl.Cell(0, KeyColumn)
	assert.Equal(t, "job_existing_1", id)
}

func TestValidateSchema(t *testing.T) {
	tbl := table.New("driver_name", "route_id", "planned_miles", "planned_stops", "depot_code")
	tbl.AppendRow([]string{"Smith", "R1", "100", "10", "ATL"})

	res := DispatchSchema.Validate(tbl)
	assert.True(t, res.Valid)
	assert.NoError(t, res.Err())
	assert.Equal(t, []string{"depot_code"}, res.UnexpectedColumns)
	assert.Len(t, res.Warnings, 1)
}

func TestValidateSchemaMissingRequired(t *testing.T) {
	tbl := table.New("driver_name", "route_id")
	tbl.AppendRow([]string{"Smith", "R1"})

	res := DispatchSchema.Validate(tbl)
	require.False(t, res.Valid)
	assert.ElementsMatch(t, []string{"planned_miles", "planned_stops"}, res.MissingRequired)

	err := res.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
}
