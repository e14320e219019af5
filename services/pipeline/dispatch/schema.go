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

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// Schema declares the expected shape of an ingested report.
//
// Required columns fail validation when absent; optional columns only
// contribute to the unexpected-column warning set. Numeric and date
// column lists drive type coercion during normalization.
type Schema struct {
	RequiredColumns []string
	OptionalColumns []string
	NumericColumns  []string
	DateColumns     []string
}

// ValidationResult collects the outcome of a schema check.
//
// Errors make the result invalid; warnings are advisory and never fail
// a run on their own.
type ValidationResult struct {
	Valid             bool
	Errors            []string
	Warnings          []string
	MissingRequired   []string
	UnexpectedColumns []string
}

// DispatchSchema is the shape of the daily dispatch report.
var DispatchSchema = Schema{
	RequiredColumns: []string{"driver_name", "route_id", "planned_miles", "planned_stops"},
	OptionalColumns: []string{"actual_miles", "actual_stops", "date", "notes"},
	NumericColumns:  []string{"planned_miles", "planned_stops", "actual_miles", "actual_stops"},
	DateColumns:     []string{"date"},
}

// SamsaraFileSchema is the shape of file-based Samsara exports used when
// the API is bypassed.
var SamsaraFileSchema = Schema{
	RequiredColumns: []string{"driver_id", "trip_date", "total_miles", "idle_time"},
	OptionalColumns: []string{"stops_count", "fuel_used", "vehicle_id"},
	NumericColumns:  []string{"total_miles", "idle_time", "stops_count", "fuel_used"},
	DateColumns:     []string{"trip_date"},
}

// Validate checks a table against the schema.
//
// Description:
//
//	Missing required columns are errors. Columns outside the
//	required+optional set are warnings only: reports routinely carry
//	depot-specific extras that the pipeline passes through untouched.
//
// Inputs:
//
//	t - Table with already-normalized column names
//
// Outputs:
//
//	ValidationResult - Valid=false iff required columns are missing
func (s Schema) Validate(t *table.Table) ValidationResult {
	res := ValidationResult{Valid: true}

	expected := make(map[string]bool, len(s.RequiredColumns)+len(s.OptionalColumns))
	for _, c := range s.RequiredColumns {
		expected[c] = true
		if !t.HasColumn(c) {
			res.MissingRequired = append(res.MissingRequired, c)
		}
	}
	for _, c := range s.OptionalColumns {
		expected[c] = true
	}

	if len(res.MissingRequired) > 0 {
		res.Valid = false
		res.Errors = append(res.Errors,
			fmt.Sprintf("missing required columns: %v", res.MissingRequired))
	}

	for _, c := range t.Columns() {
		if !expected[c] {
			res.UnexpectedColumns = append(res.UnexpectedColumns, c)
		}
	}
	if len(res.UnexpectedColumns) > 0 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("unexpected columns: %v", res.UnexpectedColumns))
	}

	return res
}

// Err converts an invalid result into ErrSchemaViolation with detail.
// Returns nil for valid results.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSchemaViolation, r.Errors)
}
