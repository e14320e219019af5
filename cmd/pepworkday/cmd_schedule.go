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
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline"
)

var (
	scheduleSpec  string
	scheduleInput string

	scheduleCmd = &cobra.Command{
		Use:   "schedule",
		Short: "Run dispatch syncs on a cron schedule",
		Long: `Runs the sync pipeline on a cron schedule until interrupted.
				The input path is re-read on every trigger, so a rotated
				report file is picked up automatically.`,
		RunE: runSchedule,
	}
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "0 6 * * *", "Cron expression (standard 5-field)")
	scheduleCmd.Flags().StringVar(&scheduleInput, "input", "", "Path to the dispatch .xlsx report (required)")
	_ = scheduleCmd.MarkFlagRequired("input")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	svc := d.pipelineService()
	c := cron.New()
	_, err = c.AddFunc(scheduleSpec, func() {
		slog.Info("scheduled sync triggered", "input", scheduleInput)
		res, err := svc.Run(ctx, pipeline.Options{InputFile: scheduleInput})
		if err != nil {
			slog.Error("scheduled sync failed", "error", err)
			return
		}
		slog.Info("scheduled sync finished",
			"rows", res.Rows, "inserted", res.Inserted,
			"updated", res.Updated, "errors", len(res.Errors))
	})
	if err != nil {
		return err
	}

	c.Start()
	slog.Info("scheduler started", "cron", scheduleSpec)
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	slog.Info("scheduler stopped")
	return nil
}
