// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is the loaded configuration singleton.
	Global PipelineConfig
	once   sync.Once

	validate = validator.New()
)

// DefaultPath returns the standard config location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".pepworkday", "pepworkday.yaml"), nil
}

// Load reads the config at the default path into Global, creating a
// default file on first run. Subsequent calls are no-ops.
func Load() error {
	var err error
	once.Do(func() {
		var path string
		if path, err = DefaultPath(); err != nil {
			return
		}
		var cfg *PipelineConfig
		if cfg, err = LoadFrom(path); err != nil {
			return
		}
		Global = *cfg
	})
	return err
}

// LoadFrom reads, env-overrides, and validates a config file. The file
// is created with defaults when missing.
func LoadFrom(path string) (*PipelineConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", path)
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config file: %w", err)
	}
	applyEnvOverrides(&cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets secrets come from the environment so they
// never have to live in the config file.
func applyEnvOverrides(cfg *PipelineConfig) {
	if v := os.Getenv("SAMSARA_API_TOKEN"); v != "" {
		cfg.Samsara.APIToken = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("PEPWORKDAY_SPREADSHEET_ID"); v != "" {
		cfg.Sheets.SpreadsheetID = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && cfg.Sheets.CredentialsFile == "" {
		cfg.Sheets.CredentialsFile = v
	}
	if v := os.Getenv("SAMSARA_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}
	if v := os.Getenv("INFLUXDB_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
