// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package table

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDeduplicatesColumns(t *testing.T) {
	tbl := New("a", "b", "a")
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
}

func TestAppendRowPadsAndTruncates(t *testing.T) {
	tbl := New("a", "b", "c")

	tbl.AppendRow([]string{"1"})
	tbl.AppendRow([]string{"1", "2", "3", "4"})

	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"1", "", ""}, tbl.Row(0))
	assert.Equal(t, []string{"1", "2", "3"}, tbl.Row(1))
}

func TestAddColumnPadsExistingRows(t *testing.T) {
	tbl := New("a")
	tbl.AppendRow([]string{"1"})

	tbl.AddColumn("b")
	v, ok := tbl.Cell(0, "b")
	require.True(t, ok)
	assert.Equal(t, "", v)
}

func TestSetCellCreatesColumn(t *testing.T) {
	tbl := New("a")
	tbl.AppendRow([]string{"1"})

	tbl.SetCell(0, "derived", "x")
	v, ok := tbl.Cell(0, "derived")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	// Out-of-range rows are ignored.
	tbl.SetCell(5, "derived", "y")
	assert.Equal(t, 1, tbl.Len())
}

func TestFloat(t *testing.T) {
	tbl := New("miles")
	tbl.AppendRow([]string{" 42.5 "})
	tbl.AppendRow([]string{""})
	tbl.AppendRow([]string{"abc"})

	f, ok := tbl.Float(0, "miles")
	require.True(t, ok)
	assert.Equal(t, 42.5, f)

	_, ok = tbl.Float(1, "miles")
	assert.False(t, ok)
	_, ok = tbl.Float(2, "miles")
	assert.False(t, ok)
	_, ok = tbl.Float(0, "missing")
	assert.False(t, ok)
}

func TestSetFloatRoundTrips(t *testing.T) {
	tbl := New("v")
	tbl.AppendRow([]string{""})
	tbl.SetFloat(0, "v", 12.25)

	f, ok := tbl.Float(0, "v")
	require.True(t, ok)
	assert.Equal(t, 12.25, f)
}

func TestParseTimeLayouts(t *testing.T) {
	cases := []string{
		"2025-06-01T08:30:00Z",
		"2025-06-01 08:30:00",
		"2025-06-01",
		"06/01/2025",
		"6/1/2025",
	}
	for _, c := range cases {
		ts, ok := ParseTime(c)
		require.True(t, ok, "layout %q", c)
		assert.Equal(t, time.June, ts.Month())
	}

	_, ok := ParseTime("not a date")
	assert.False(t, ok)
	_, ok = ParseTime("")
	assert.False(t, ok)
}

func TestValuesIncludesHeader(t *testing.T) {
	tbl := New("a", "b")
	tbl.AppendRow([]string{"1", "2"})

	values := tbl.Values()
	require.Len(t, values, 2)
	assert.Equal(t, []string{"a", "b"}, values[0])
	assert.Equal(t, []string{"1", "2"}, values[1])

	// Mutating the returned rows must not affect the table.
	values[1][0] = "changed"
	v, _ := tbl.Cell(0, "a")
	assert.Equal(t, "1", v)
}

func TestRenameColumn(t *testing.T) {
	tbl := New("old", "other")
	tbl.AppendRow([]string{"v", "w"})

	tbl.RenameColumn("old", "new")
	v, ok := tbl.Cell(0, "new")
	require.True(t, ok)
	assert.Equal(t, "v", v)
	assert.False(t, tbl.HasColumn("old"))

	// Renaming onto an existing column is refused.
	tbl.RenameColumn("new", "other")
	assert.True(t, tbl.HasColumn("new"))
}
