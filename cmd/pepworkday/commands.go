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

	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/cmd/pepworkday/config"
	"github.com/pepmove/pepworkday/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string

	cfg    config.PipelineConfig
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "pepworkday",
		Short: "A cli to sync PEPMove dispatch data with Samsara telematics",
		Long: `pepworkday reconciles dispatch Excel reports against Samsara
				fleet data and keeps the results in Google Sheets.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				loaded, err := config.LoadFrom(configPath)
				if err != nil {
					return err
				}
				config.Global = *loaded
			} else if err := config.Load(); err != nil {
				return err
			}
			cfg = config.Global

			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(level),
				LogDir:  cfg.Logging.Dir,
				Service: "pepworkday",
				JSON:    cfg.Logging.JSON,
			})
			slog.SetDefault(logger.Logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				logger.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.pepworkday/pepworkday.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
}
