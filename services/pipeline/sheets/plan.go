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
	"fmt"
	"strings"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// Update is one existing worksheet row to be rewritten.
type Update struct {
	// RowIndex is the zero-based worksheet row (header is row 0).
	RowIndex int
	Values   []string
}

// Plan is the set of writes needed to make a worksheet reflect the
// incoming table. Rows whose cells already match are skipped, which is
// what makes repeated runs idempotent.
type Plan struct {
	// Header is the worksheet header after merging incoming columns.
	// HeaderChanged marks that it differs from what the sheet holds.
	Header        []string
	HeaderChanged bool

	Inserts []([]string)
	Updates []Update
	Skipped int
}

// Empty reports whether the plan requires no writes.
func (p Plan) Empty() bool {
	return !p.HeaderChanged && len(p.Inserts) == 0 && len(p.Updates) == 0
}

// BuildPlan diffs the incoming table against a worksheet snapshot.
//
// Description:
//
//	existing is the worksheet contents as returned by the values API:
//	header row first, then data rows. Rows are keyed by the key column;
//	incoming rows with a key already present become updates only when
//	some cell differs, otherwise they are skipped. Keys not present
//	become inserts. Incoming columns missing from the sheet header are
//	appended to it; sheet columns absent from the table are preserved
//	with the row's existing value.
//
// Inputs:
//
//	existing - Worksheet snapshot (may be empty for a fresh sheet)
//	t - Incoming table
//	key - Upsert key column name
//
// Outputs:
//
//	Plan - Writes to apply
//	error - ErrMissingKeyColumn, or duplicate-key detail
func BuildPlan(existing [][]string, t *table.Table, key string) (Plan, error) {
	if !t.HasColumn(key) {
		return Plan{}, fmt.Errorf("%w: %s", ErrMissingKeyColumn, key)
	}

	var header []string
	if len(existing) > 0 {
		header = append(header, existing[0]...)
	}
	headerIdx := make(map[string]int, len(header))
	for i, h := range header {
		headerIdx[h] = i
	}

	p := Plan{}
	for _, col := range t.Columns() {
		if _, ok := headerIdx[col]; !ok {
			headerIdx[col] = len(header)
			header = append(header, col)
			p.HeaderChanged = true
		}
	}
	if len(existing) == 0 {
		p.HeaderChanged = true
	}
	p.Header = header

	keyIdx, ok := headerIdx[key]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %s", ErrMissingKeyColumn, key)
	}

	// Existing rows by key. Later duplicates win, matching the manual
	// cleanup convention of keeping the bottom-most row.
	byKey := make(map[string]int)
	for r := 1; r < len(existing); r++ {
		row := existing[r]
		if keyIdx < len(row) && strings.TrimSpace(row[keyIdx]) != "" {
			byKey[strings.TrimSpace(row[keyIdx])] = r
		}
	}

	seen := make(map[string]struct{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		k, _ := t.Cell(i, key)
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			return Plan{}, fmt.Errorf("duplicate key %q in incoming rows", k)
		}
		seen[k] = struct{}{}

		rowIdx, exists := byKey[k]
		if !exists {
			p.Inserts = append(p.Inserts, projectRow(t, i, header))
			continue
		}

		merged := mergeRow(existing[rowIdx], t, i, header, headerIdx)
		if rowsEqual(padRow(existing[rowIdx], len(header)), merged) {
			p.Skipped++
			continue
		}
		p.Updates = append(p.Updates, Update{RowIndex: rowIdx, Values: merged})
	}
	return p, nil
}

// projectRow lays out a table row in worksheet header order.
func projectRow(t *table.Table, row int, header []string) []string {
	out := make([]string, len(header))
	for j, col := range header {
		if v, ok := t.Cell(row, col); ok {
			out[j] = v
		}
	}
	return out
}

// mergeRow overlays table cells onto an existing row, keeping sheet
// values for columns the table does not carry.
func mergeRow(existing []string, t *table.Table, row int, header []string, headerIdx map[string]int) []string {
	out := padRow(existing, len(header))
	for _, col := range t.Columns() {
		if v, ok := t.Cell(row, col); ok {
			out[headerIdx[col]] = v
		}
	}
	return out
}

func padRow(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

func rowsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// columnName converts a zero-based column index to its A1 letter form.
func columnName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}
