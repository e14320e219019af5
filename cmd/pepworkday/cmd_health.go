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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/state"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the configured services",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	failures := 0
	check := func(name string, err error) {
		if err != nil {
			failures++
			fmt.Printf("  [FAIL] %-16s %v\n", name, err)
			return
		}
		fmt.Printf("  [ OK ] %s\n", name)
	}
	skip := func(name, reason string) {
		fmt.Printf("  [SKIP] %-16s %s\n", name, reason)
	}

	fmt.Println("pepworkday health:")

	// State store: open and close at the configured path.
	check("state store", func() error {
		stateCfg := state.DefaultConfig()
		stateCfg.Path = cfg.State.Path
		stateCfg.GCInterval = 0
		s, err := state.Open(stateCfg)
		if err != nil {
			return err
		}
		return s.Close()
	}())

	// Samsara: a real list call with the configured token.
	if cfg.Samsara.APIToken == "" {
		skip("samsara api", "no api token configured")
	} else {
		client := samsara.New(samsara.Config{
			APIToken: cfg.Samsara.APIToken,
			BaseURL:  cfg.Samsara.BaseURL,
			GroupID:  cfg.Samsara.GroupID,
			Timeout:  10 * time.Second,
		})
		_, err := client.ListVehicles(ctx)
		check("samsara api", err)
	}

	// Sheets: credentials file presence only; a write probe against
	// the production spreadsheet is not a health check.
	if cfg.Sheets.SpreadsheetID == "" {
		skip("google sheets", "no spreadsheet id configured")
	} else {
		_, err := os.Stat(cfg.Sheets.CredentialsFile)
		check("google sheets", err)
	}

	if cfg.Slack.WebhookURL == "" {
		skip("slack", "no webhook url configured")
	} else {
		fmt.Printf("  [ OK ] slack (channel %s)\n", cfg.Slack.Channel)
	}

	if failures > 0 {
		return fmt.Errorf("%d health checks failed", failures)
	}
	return nil
}
