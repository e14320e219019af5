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
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// KeyColumn is the business key used for sheet upserts. Rows lacking it
// get a synthesized key during normalization.
const KeyColumn = "_kp_job_id"

var (
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	underscoreRe = regexp.MustCompile(`_+`)
)

// NormalizeColumnName converts a raw header to the canonical snake_case
// form: lowercase, punctuation stripped, whitespace collapsed to single
// underscores, leading/trailing underscores trimmed. Names carrying the
// `_kp_` system prefix are already canonical and keep their leading
// underscore; trimming it would detach the key column from re-ingested
// reports and break upsert convergence.
func NormalizeColumnName(name string) string {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if strings.HasPrefix(trimmed, "_kp_") {
		return trimmed
	}
	n := nonWordRe.ReplaceAllString(strings.ToLower(name), "")
	n = whitespaceRe.ReplaceAllString(strings.TrimSpace(n), "_")
	n = strings.Trim(underscoreRe.ReplaceAllString(n, "_"), "_")
	if n == "" {
		return "unnamed_column"
	}
	return n
}

// Normalize canonicalizes a freshly loaded table in place.
//
// Description:
//
//	Rewrites every column name via NormalizeColumnName, coerces
//	date-like and numeric-like columns by name keyword, and ensures
//	the _kp_job_id key column exists, synthesizing keys of the form
//	job_{yyyymmdd_hhmmss}_{i:06d} when absent. The timestamp is taken
//	once per call so all synthesized keys in a run share a prefix.
//
// Inputs:
//
//	t - Table to normalize (mutated)
//	now - Clock for key synthesis; time.Now in production
//
// Outputs:
//
//	*table.Table - The same table, for chaining
func Normalize(t *table.Table, now time.Time) *table.Table {
	for _, col := range append([]string(nil), t.Columns()...) {
		t.RenameColumn(col, NormalizeColumnName(col))
	}

	for _, col := range t.Columns() {
		switch {
		case isDateColumn(col):
			coerceDates(t, col)
		case isNumericColumn(col):
			coerceNumbers(t, col)
		}
	}

	if !t.HasColumn(KeyColumn) {
		t.AddColumn(KeyColumn)
		prefix := now.Format("20060102_150405")
		for i := 0; i < t.Len(); i++ {
			t.SetCell(i, KeyColumn, fmt.Sprintf("job_%s_%06d", prefix, i))
		}
		slog.Info("synthesized job ids", "column", KeyColumn, "rows", t.Len())
	}

	return t
}

func isDateColumn(name string) bool {
	for _, kw := range []string{"date", "time", "created", "updated"} {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

func isNumericColumn(name string) bool {
	for _, kw := range []string{"amount", "price", "cost", "miles", "stops"} {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// coerceDates rewrites parseable date cells to RFC 3339 date form.
// Unparseable cells are left alone; the join layer treats them as null.
func coerceDates(t *table.Table, col string) {
	for i := 0; i < t.Len(); i++ {
		if ts, ok := t.Time(i, col); ok {
			t.SetCell(i, col, ts.Format("2006-01-02"))
		}
	}
}

// coerceNumbers strips grouping commas and re-formats numeric cells.
// Cells that fail to parse are blanked, matching the coerce-to-null
// behavior the downstream variance math expects.
func coerceNumbers(t *table.Table, col string) {
	for i := 0; i < t.Len(); i++ {
		s, _ := t.Cell(i, col)
		if strings.TrimSpace(s) == "" {
			continue
		}
		clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if f, err := strconv.ParseFloat(clean, 64); err == nil {
			t.SetFloat(i, col, f)
		} else {
			t.SetCell(i, col, "")
		}
	}
}
