// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sheets writes pipeline tables to Google Sheets using keyed,
// idempotent upserts: rows are matched on a business key, rewritten
// only when a cell actually changed, and appended otherwise.
package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/pepmove/pepworkday/services/pipeline/table"
)

const (
	// DefaultWorksheet receives enriched dispatch rows.
	DefaultWorksheet = "RawData"

	// DefaultBatchSize caps rows per values API call.
	DefaultBatchSize = 1000

	defaultSheetRows = 1000
	defaultSheetCols = 26
)

// Config holds Sheets API connection settings.
type Config struct {
	CredentialsFile string
	SpreadsheetID   string
	Worksheet       string
	BatchSize       int
}

// Result summarizes one upsert run. Errors holds per-batch failures;
// a batch failing does not stop later batches.
type Result struct {
	Worksheet string
	Inserted  int
	Updated   int
	Skipped   int
	Errors    []error
	Duration  time.Duration
}

// Client is a Google Sheets writer. Upserts to the same worksheet are
// serialized with a per-worksheet mutex so concurrent runs cannot
// interleave their read-plan-write cycles.
type Client struct {
	cfg Config
	svc *sheetsapi.Service
	log *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewClient builds a Sheets client from a service account key file.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, ErrNoSpreadsheet
	}
	if cfg.Worksheet == "" {
		cfg.Worksheet = DefaultWorksheet
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	svc, err := sheetsapi.NewService(ctx,
		option.WithCredentialsFile(cfg.CredentialsFile),
		option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Client{
		cfg:   cfg,
		svc:   svc,
		log:   slog.Default().With("component", "sheets"),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Upsert writes t to the default worksheet keyed on key.
func (c *Client) Upsert(ctx context.Context, t *table.Table, key string) (*Result, error) {
	return c.UpsertTo(ctx, c.cfg.Worksheet, t, key)
}

// UpsertTo writes t to the named worksheet keyed on key.
//
// Description:
//
//	Ensures the worksheet exists, snapshots its contents, builds a
//	keyed write plan, and applies it in batches. Existing rows are
//	rewritten in place over their full width; new rows are appended.
//	Batch failures are recorded in the Result and later batches still
//	run.
func (c *Client) UpsertTo(ctx context.Context, worksheet string, t *table.Table, key string) (*Result, error) {
	lock := c.worksheetLock(worksheet)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if err := c.ensureWorksheet(ctx, worksheet); err != nil {
		return nil, err
	}

	existing, err := c.readAll(ctx, worksheet)
	if err != nil {
		return nil, err
	}

	plan, err := BuildPlan(existing, t, key)
	if err != nil {
		return nil, err
	}

	res := &Result{Worksheet: worksheet, Skipped: plan.Skipped}
	if plan.Empty() {
		res.Duration = time.Since(start)
		c.log.Info("worksheet already current", "worksheet", worksheet, "skipped", res.Skipped)
		return res, nil
	}

	if plan.HeaderChanged {
		if err := c.writeRange(ctx, fmt.Sprintf("%s!A1", worksheet), [][]string{plan.Header}); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("write header: %w", err))
		}
	}

	c.applyUpdates(ctx, worksheet, plan, res)
	c.applyInserts(ctx, worksheet, plan, res)

	res.Duration = time.Since(start)
	c.log.Info("upsert complete", "worksheet", worksheet,
		"inserted", res.Inserted, "updated", res.Updated,
		"skipped", res.Skipped, "errors", len(res.Errors),
		"duration", res.Duration)
	return res, nil
}

func (c *Client) applyUpdates(ctx context.Context, worksheet string, plan Plan, res *Result) {
	width := columnName(len(plan.Header) - 1)
	for i := 0; i < len(plan.Updates); i += c.cfg.BatchSize {
		end := min(i+c.cfg.BatchSize, len(plan.Updates))
		batch := plan.Updates[i:end]

		req := &sheetsapi.BatchUpdateValuesRequest{ValueInputOption: "RAW"}
		for _, u := range batch {
			row := u.RowIndex + 1 // values API rows are 1-based
			req.Data = append(req.Data, &sheetsapi.ValueRange{
				Range:  fmt.Sprintf("%s!A%d:%s%d", worksheet, row, width, row),
				Values: toValues([][]string{u.Values}),
			})
		}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.cfg.SpreadsheetID, req).Context(ctx).Do(); err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("update batch at %d: %w", i, err))
			continue
		}
		res.Updated += len(batch)
	}
}

func (c *Client) applyInserts(ctx context.Context, worksheet string, plan Plan, res *Result) {
	for i := 0; i < len(plan.Inserts); i += c.cfg.BatchSize {
		end := min(i+c.cfg.BatchSize, len(plan.Inserts))
		batch := plan.Inserts[i:end]

		vr := &sheetsapi.ValueRange{Values: toValues(batch)}
		_, err := c.svc.Spreadsheets.Values.Append(c.cfg.SpreadsheetID, fmt.Sprintf("%s!A1", worksheet), vr).
			ValueInputOption("RAW").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("append batch at %d: %w", i, err))
			continue
		}
		res.Inserted += len(batch)
	}
}

// ensureWorksheet creates the named worksheet if the spreadsheet does
// not already contain it.
func (c *Client) ensureWorksheet(ctx context.Context, worksheet string) error {
	ss, err := c.svc.Spreadsheets.Get(c.cfg.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == worksheet {
			return nil
		}
	}

	req := &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: []*sheetsapi.Request{{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{
					Title: worksheet,
					GridProperties: &sheetsapi.GridProperties{
						RowCount:    defaultSheetRows,
						ColumnCount: defaultSheetCols,
					},
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.cfg.SpreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("create worksheet %q: %w", worksheet, err)
	}
	c.log.Info("created worksheet", "worksheet", worksheet)
	return nil
}

func (c *Client) readAll(ctx context.Context, worksheet string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.cfg.SpreadsheetID, worksheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read worksheet %q: %w", worksheet, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, r := range resp.Values {
		row := make([]string, len(r))
		for i, v := range r {
			row[i] = fmt.Sprint(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (c *Client) writeRange(ctx context.Context, rng string, rows [][]string) error {
	vr := &sheetsapi.ValueRange{Values: toValues(rows)}
	_, err := c.svc.Spreadsheets.Values.Update(c.cfg.SpreadsheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (c *Client) worksheetLock(worksheet string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.locks[worksheet]; !ok {
		c.locks[worksheet] = &sync.Mutex{}
	}
	return c.locks[worksheet]
}

func toValues(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(r))
		for j, v := range r {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}
