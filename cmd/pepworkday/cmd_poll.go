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
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline/poller"
)

var (
	pollOnce     bool
	pollInterval time.Duration
	pollTypes    []string

	pollCmd = &cobra.Command{
		Use:   "poll",
		Short: "Poll Samsara data into per-type worksheets",
		Long: `Polls trips, locations, and stats from Samsara, deduplicates
				against the local state store, and upserts new records to
				their worksheets. Runs continuously unless --once is given.`,
		RunE: runPoll,
	}
)

func init() {
	pollCmd.Flags().BoolVar(&pollOnce, "once", false, "Run a single poll cycle and exit")
	pollCmd.Flags().DurationVar(&pollInterval, "interval", 0, "Cycle interval override (default from config)")
	pollCmd.Flags().StringSliceVar(&pollTypes, "types", nil, "Data types to poll (default from config)")
}

func runPoll(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	pcfg := poller.Config{
		Interval: time.Duration(cfg.Poller.IntervalSeconds) * time.Second,
		DedupTTL: time.Duration(cfg.Poller.DedupTTLHours) * time.Hour,
	}
	if pollInterval > 0 {
		pcfg.Interval = pollInterval
	}
	types := cfg.Poller.DataTypes
	if len(pollTypes) > 0 {
		types = pollTypes
	}
	for _, t := range types {
		pcfg.DataTypes = append(pcfg.DataTypes, poller.DataType(t))
	}

	p := poller.New(pcfg, d.samsara, d.sheets, d.store, d.notifier)

	if pollOnce {
		m, err := p.PollOnce(ctx)
		if err != nil {
			return err
		}
		for dt, tm := range m.Types {
			status := "ok"
			if tm.Err != nil {
				status = tm.Err.Error()
			}
			fmt.Printf("%-14s fetched=%d new=%d duplicates=%d upserted=%d [%s]\n",
				dt, tm.Fetched, tm.New, tm.Duplicates, tm.Upserted, status)
		}
		if len(m.Failed()) > 0 {
			return fmt.Errorf("%d data types failed", len(m.Failed()))
		}
		return nil
	}

	err = p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
