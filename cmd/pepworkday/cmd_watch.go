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
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline"
)

var (
	watchDir      string
	watchDebounce time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch a directory and sync new dispatch reports",
		Long: `Watches a directory for new or rewritten .xlsx files and runs
				the sync pipeline on each one. Writes are debounced so a
				report still being copied is not read half-finished.`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Directory to watch (required)")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "Quiet period before a changed file is synced")
	_ = watchCmd.MarkFlagRequired("dir")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()
	svc := d.pipelineService()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(watchDir); err != nil {
		return err
	}
	slog.Info("watching for dispatch reports", "dir", watchDir, "debounce", watchDebounce)

	// One timer per path; each write resets it so the sync fires only
	// after the file has been quiet for the debounce window.
	var mu sync.Mutex
	timers := make(map[string]*time.Timer)

	trigger := func(path string) {
		slog.Info("dispatch report changed", "path", path)
		res, err := svc.Run(ctx, pipeline.Options{InputFile: path})
		if err != nil {
			slog.Error("watch sync failed", "path", path, "error", err)
			return
		}
		slog.Info("watch sync finished", "path", path,
			"rows", res.Rows, "inserted", res.Inserted, "updated", res.Updated)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error", "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			ext := strings.ToLower(filepath.Ext(ev.Name))
			if ext != ".xlsx" && ext != ".xls" && ext != ".csv" {
				continue
			}

			path := ev.Name
			mu.Lock()
			if t, exists := timers[path]; exists {
				t.Stop()
			}
			timers[path] = time.AfterFunc(watchDebounce, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				trigger(path)
			})
			mu.Unlock()
		}
	}
}
