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
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

// LoadOptions controls workbook ingestion.
type LoadOptions struct {
	// Sheet selects a worksheet by name. Empty selects the first sheet.
	Sheet string

	// HeaderRow is the zero-based row index holding column headers.
	HeaderRow int
}

// Load reads an .xlsx dispatch report into a table.
//
// Description:
//
//	Opens the workbook, reads the selected sheet, takes HeaderRow as
//	column names, and drops rows and columns that are entirely empty.
//	Merged cells are flattened by excelize into their anchor cell,
//	which matches how the dispatch office exports reports.
//
// Inputs:
//
//	path - Path to the .xlsx file
//	opts - Sheet and header selection
//
// Outputs:
//
//	*table.Table - Raw (un-normalized) table
//	error - ErrFileNotFound, ErrSheetNotFound, or ErrEmptyWorkbook
func Load(path string, opts LoadOptions) (*table.Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, sheet)
	}
	if len(rows) <= opts.HeaderRow {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWorkbook, path)
	}

	t := fromRows(rows[opts.HeaderRow], rows[opts.HeaderRow+1:])
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWorkbook, path)
	}

	slog.Info("loaded dispatch workbook",
		"path", path, "sheet", sheet, "rows", t.Len(), "columns", len(t.Columns()))
	return t, nil
}

// LoadTabular reads an .xlsx or .csv file into a table, dispatching on
// extension. Used for file-based Samsara exports.
func LoadTabular(path string) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls":
		return Load(path, LoadOptions{})
	case ".csv":
		return loadCSV(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q", filepath.Ext(path))
	}
}

func loadCSV(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("open csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWorkbook, path)
	}

	t := fromRows(records[0], records[1:])
	if t.Len() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyWorkbook, path)
	}
	return t, nil
}

// fromRows builds a table from a header row and data rows, dropping
// all-empty rows and all-empty columns.
func fromRows(header []string, data [][]string) *table.Table {
	// Identify columns that contain at least one value (header or cell).
	width := len(header)
	for _, row := range data {
		if len(row) > width {
			width = len(row)
		}
	}
	keep := make([]bool, width)
	for i := 0; i < width; i++ {
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			keep[i] = true
			continue
		}
		for _, row := range data {
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				keep[i] = true
				break
			}
		}
	}

	// Duplicate header names keep the first occurrence. The duplicate
	// column must be dropped here, cell and header together, so the
	// remaining cells stay aligned with their columns.
	var cols []string
	seen := make(map[string]bool)
	for i := 0; i < width; i++ {
		if !keep[i] {
			continue
		}
		name := ""
		if i < len(header) {
			name = strings.TrimSpace(header[i])
		}
		if name == "" {
			name = fmt.Sprintf("unnamed_column_%d", i)
		}
		if seen[name] {
			keep[i] = false
			slog.Warn("dropping duplicate column", "column", name, "index", i)
			continue
		}
		seen[name] = true
		cols = append(cols, name)
	}

	t := table.New(cols...)
	for _, row := range data {
		empty := true
		var cells []string
		for i := 0; i < width; i++ {
			if !keep[i] {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			if v != "" {
				empty = false
			}
			cells = append(cells, v)
		}
		if !empty {
			t.AppendRow(cells)
		}
	}
	return t
}
