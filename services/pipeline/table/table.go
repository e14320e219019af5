// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package table provides the in-memory tabular model shared by the
// ingestion, enrichment, and sheet-upsert stages.
//
// A Table is an ordered set of named columns over string cells. Cells are
// kept as strings because the spreadsheet boundary is stringly-typed in
// both directions; typed accessors (Float, Time) parse on demand and
// report absence instead of guessing.
//
// # Ownership Model
//
// Tables are mutable and NOT safe for concurrent writes. The pipeline
// passes a table through its stages sequentially; each stage may append
// columns or rows but must not share the table across goroutines while
// doing so.
package table

import (
	"strconv"
	"strings"
	"time"
)

// Table is an ordered collection of named string columns.
type Table struct {
	cols  []string
	index map[string]int
	rows  [][]string
}

// New creates an empty table with the given column order.
// Duplicate column names keep the first occurrence.
func New(cols ...string) *Table {
	t := &Table{index: make(map[string]int, len(cols))}
	for _, c := range cols {
		t.addColumn(c)
	}
	return t
}

// Columns returns the column names in order. The slice is shared;
// callers must not modify it.
func (t *Table) Columns() []string { return t.cols }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// AddColumn appends a new column, padding existing rows with empty cells.
// Adding an existing column is a no-op.
func (t *Table) AddColumn(name string) {
	if t.addColumn(name) {
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], "")
		}
	}
}

func (t *Table) addColumn(name string) bool {
	if _, ok := t.index[name]; ok {
		return false
	}
	t.index[name] = len(t.cols)
	t.cols = append(t.cols, name)
	return true
}

// AppendRow adds a row. Short rows are padded with empty cells; extra
// cells beyond the column count are dropped.
func (t *Table) AppendRow(cells []string) {
	row := make([]string, len(t.cols))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Cell returns the value at (row, col). The second return is false when
// the row or column does not exist.
func (t *Table) Cell(row int, col string) (string, bool) {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return "", false
	}
	return t.rows[row][i], true
}

// SetCell writes a value, creating the column if needed.
func (t *Table) SetCell(row int, col, value string) {
	if row < 0 || row >= len(t.rows) {
		return
	}
	t.AddColumn(col)
	t.rows[row][t.index[col]] = value
}

// Float parses the cell as a float64. Empty or unparseable cells return
// ok=false rather than zero-with-success.
func (t *Table) Float(row int, col string) (float64, bool) {
	s, ok := t.Cell(row, col)
	if !ok || strings.TrimSpace(s) == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// SetFloat writes a float cell with compact formatting.
func (t *Table) SetFloat(row int, col string, v float64) {
	t.SetCell(row, col, strconv.FormatFloat(v, 'f', -1, 64))
}

// timeLayouts are tried in order when parsing date cells. Dispatch
// reports carry a mix of ISO timestamps and bare dates.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

// Time parses the cell as a timestamp using the known dispatch layouts.
func (t *Table) Time(row int, col string) (time.Time, bool) {
	s, ok := t.Cell(row, col)
	if !ok {
		return time.Time{}, false
	}
	return ParseTime(s)
}

// ParseTime parses a cell value using the known dispatch layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Row returns a copy of the row's cells in column order.
func (t *Table) Row(row int) []string {
	if row < 0 || row >= len(t.rows) {
		return nil
	}
	out := make([]string, len(t.rows[row]))
	copy(out, t.rows[row])
	return out
}

// Values returns the table as a header row followed by data rows, the
// shape the Sheets API consumes.
func (t *Table) Values() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	header := make([]string, len(t.cols))
	copy(header, t.cols)
	out = append(out, header)
	for i := range t.rows {
		out = append(out, t.Row(i))
	}
	return out
}

// RenameColumn renames a column in place. Renaming onto an existing
// name or a missing source is a no-op.
func (t *Table) RenameColumn(from, to string) {
	i, ok := t.index[from]
	if !ok {
		return
	}
	if _, exists := t.index[to]; exists {
		return
	}
	delete(t.index, from)
	t.index[to] = i
	t.cols[i] = to
}
