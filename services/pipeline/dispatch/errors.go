// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dispatch loads and normalizes dispatch Excel reports.
//
// The ingestion path is: Load (xlsx → table) → Validate (schema check) →
// Normalize (column names, types, job-id synthesis). Each stage is usable
// on its own; the pipeline orchestrator runs them in order.
package dispatch

import "errors"

// Sentinel errors for dispatch ingestion.
var (
	// ErrFileNotFound is returned when the report path does not exist.
	ErrFileNotFound = errors.New("dispatch file not found")

	// ErrEmptyWorkbook is returned when the workbook has no usable rows.
	ErrEmptyWorkbook = errors.New("workbook contains no data rows")

	// ErrSheetNotFound is returned when the requested sheet is missing.
	ErrSheetNotFound = errors.New("worksheet not found in workbook")

	// ErrSchemaViolation is returned by Validate in strict mode when
	// required columns are missing.
	ErrSchemaViolation = errors.New("dispatch schema validation failed")
)
