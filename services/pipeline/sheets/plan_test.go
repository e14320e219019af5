// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

const key = "_kp_job_id"

func incoming(rows ...[]string) *table.Table {
	t := table.New(key, "driver_name", "planned_miles")
	for _, r := range rows {
		t.AppendRow(r)
	}
	return t
}

func TestBuildPlanFreshSheet(t *testing.T) {
	tbl := incoming(
		[]string{"job_1", "Smith", "100"},
		[]string{"job_2", "Jones", "80"},
	)

	plan, err := BuildPlan(nil, tbl, key)
	require.NoError(t, err)

	assert.True(t, plan.HeaderChanged)
	assert.Equal(t, []string{key, "driver_name", "planned_miles"}, plan.Header)
	assert.Len(t, plan.Inserts, 2)
	assert.Empty(t, plan.Updates)
	assert.Equal(t, []string{"job_1", "Smith", "100"}, plan.Inserts[0])
}

func TestBuildPlanInsertAndUpdate(t *testing.T) {
	existing := [][]string{
		{key, "driver_name", "planned_miles"},
		{"job_1", "Smith", "100"},
		{"job_2", "Jones", "80"},
	}
	tbl := incoming(
		[]string{"job_1", "Smith", "110"}, // changed: update
		[]string{"job_2", "Jones", "80"},  // identical: skip
		[]string{"job_3", "Davis", "60"},  // new: insert
	)

	plan, err := BuildPlan(existing, tbl, key)
	require.NoError(t, err)

	assert.False(t, plan.HeaderChanged)
	assert.Equal(t, 1, plan.Skipped)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, 1, plan.Updates[0].RowIndex)
	assert.Equal(t, []string{"job_1", "Smith", "110"}, plan.Updates[0].Values)

	require.Len(t, plan.Inserts, 1)
	assert.Equal(t, []string{"job_3", "Davis", "60"}, plan.Inserts[0])
}

func TestBuildPlanIdempotent(t *testing.T) {
	existing := [][]string{
		{key, "driver_name", "planned_miles"},
		{"job_1", "Smith", "100"},
	}
	tbl := incoming([]string{"job_1", "Smith", "100"})

	plan, err := BuildPlan(existing, tbl, key)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Equal(t, 1, plan.Skipped)
}

func TestBuildPlanNewColumnsExtendHeader(t *testing.T) {
	existing := [][]string{
		{key, "driver_name"},
		{"job_1", "Smith"},
	}
	tbl := table.New(key, "driver_name", "samsara_miles")
	tbl.AppendRow([]string{"job_1", "Smith", "105"})

	plan, err := BuildPlan(existing, tbl, key)
	require.NoError(t, err)

	assert.True(t, plan.HeaderChanged)
	assert.Equal(t, []string{key, "driver_name", "samsara_miles"}, plan.Header)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []string{"job_1", "Smith", "105"}, plan.Updates[0].Values)
}

func TestBuildPlanPreservesSheetOnlyColumns(t *testing.T) {
	existing := [][]string{
		{key, "driver_name", "manual_notes"},
		{"job_1", "Smith", "call dispatcher"},
	}
	tbl := table.New(key, "driver_name")
	tbl.AppendRow([]string{"job_1", "Smyth"})

	plan, err := BuildPlan(existing, tbl, key)
	require.NoError(t, err)

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, []string{"job_1", "Smyth", "call dispatcher"}, plan.Updates[0].Values)
}

func TestBuildPlanMissingKey(t *testing.T) {
	tbl := table.New("driver_name")
	tbl.AppendRow([]string{"Smith"})

	_, err := BuildPlan(nil, tbl, key)
	assert.ErrorIs(t, err, ErrMissingKeyColumn)
}

func TestBuildPlanDuplicateIncomingKey(t *testing.T) {
	tbl := incoming(
		[]string{"job_1", "Smith", "100"},
		[]string{"job_1", "Jones", "80"},
	)
	_, err := BuildPlan(nil, tbl, key)
	assert.Error(t, err)
}

func TestBuildPlanBlankKeysSkipped(t *testing.T) {
	tbl := incoming(
		[]string{"", "Smith", "100"},
		[]string{"job_2", "Jones", "80"},
	)
	plan, err := BuildPlan(nil, tbl, key)
	require.NoError(t, err)
	assert.Len(t, plan.Inserts, 1)
}

func TestBuildPlanDuplicateSheetKeysLastWins(t *testing.T) {
	existing := [][]string{
		{key, "driver_name", "planned_miles"},
		{"job_1", "Smith", "100"},
		{"job_1", "Smith", "999"}, // duplicate left by a manual edit
	}
	tbl := incoming([]string{"job_1", "Smith", "110"})

	plan, err := BuildPlan(existing, tbl, key)
	require.NoError(t, err)
	require.Len(t, plan.Updates, 1)
	assert.Equal(t, 2, plan.Updates[0].RowIndex)
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "A", columnName(0))
	assert.Equal(t, "Z", columnName(25))
	assert.Equal(t, "AA", columnName(26))
	assert.Equal(t, "AZ", columnName(51))
	assert.Equal(t, "BA", columnName(52))
}
