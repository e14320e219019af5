// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline"
)

var (
	syncInput            string
	syncSheet            string
	syncSamsaraFile      string
	syncWorksheet        string
	syncDryRun           bool
	syncIncludeLocations bool
	syncFleetSummary     bool
	syncWindowHours      int
	syncStart            string
	syncEnd              string
	syncChannel          string

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Run one dispatch sync: ingest, enrich, and upsert to Sheets",
		RunE:  runSync,
	}
)

func init() {
	syncCmd.Flags().StringVar(&syncInput, "input", "", "Path to the dispatch .xlsx report (required)")
	syncCmd.Flags().StringVar(&syncSheet, "sheet", "", "Worksheet name inside the workbook (default first sheet)")
	syncCmd.Flags().StringVar(&syncSamsaraFile, "samsara-file", "", "Read trip actuals from a file export instead of the API")
	syncCmd.Flags().StringVar(&syncWorksheet, "worksheet", "", "Destination worksheet (default from config)")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Run every stage but write nothing externally")
	syncCmd.Flags().BoolVar(&syncIncludeLocations, "include-locations", false, "Also snapshot vehicle GPS readings")
	syncCmd.Flags().BoolVar(&syncFleetSummary, "fleet-summary", false, "Post a fleet snapshot with the Slack summary")
	syncCmd.Flags().IntVar(&syncWindowHours, "window-hours", 24, "Hours of trip history to fetch from the API")
	syncCmd.Flags().StringVar(&syncStart, "start", "", "Trip window start (RFC 3339, overrides --window-hours)")
	syncCmd.Flags().StringVar(&syncEnd, "end", "", "Trip window end (RFC 3339, default now)")
	syncCmd.Flags().StringVar(&syncChannel, "channel", "", "Slack channel override for this run")
	_ = syncCmd.MarkFlagRequired("input")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if syncChannel != "" {
		cfg.Slack.Channel = syncChannel
	}
	d, err := buildDeps(ctx, !syncDryRun)
	if err != nil {
		return err
	}
	defer d.Close()

	opts := pipeline.Options{
		InputFile:           syncInput,
		Sheet:               syncSheet,
		SamsaraFile:         syncSamsaraFile,
		Worksheet:           syncWorksheet,
		DryRun:              syncDryRun,
		IncludeLocations:    syncIncludeLocations,
		IncludeFleetSummary: syncFleetSummary,
	}
	switch {
	case syncStart != "":
		start, err := time.Parse(time.RFC3339, syncStart)
		if err != nil {
			return fmt.Errorf("parse --start: %w", err)
		}
		end := time.Now()
		if syncEnd != "" {
			if end, err = time.Parse(time.RFC3339, syncEnd); err != nil {
				return fmt.Errorf("parse --end: %w", err)
			}
		}
		opts.WindowStart, opts.WindowEnd = start, end
	case syncWindowHours > 0:
		opts.WindowEnd = time.Now()
		opts.WindowStart = opts.WindowEnd.Add(-time.Duration(syncWindowHours) * time.Hour)
	}

	res, err := d.pipelineService().Run(ctx, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Sync complete: %d rows, %d inserted, %d updated, %d skipped, match rate %.1f%%, %d errors (%s)\n",
		res.Rows, res.Inserted, res.Updated, res.Skipped,
		res.MatchRate*100, len(res.Errors), res.Duration.Round(time.Millisecond))
	if res.ArchiveURI != "" {
		fmt.Printf("Archived source to %s\n", res.ArchiveURI)
	}
	for _, e := range res.Errors {
		fmt.Printf("  batch error: %v\n", e)
	}
	return nil
}
