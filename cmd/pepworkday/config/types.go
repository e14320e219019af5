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
	"os"
	"path/filepath"
)

// PipelineConfig is the root configuration for the pepworkday CLI.
type PipelineConfig struct {
	Samsara SamsaraConfig `yaml:"samsara"`
	Sheets  SheetsConfig  `yaml:"sheets"`
	Slack   SlackConfig   `yaml:"slack"`
	Webhook WebhookConfig `yaml:"webhook"`
	State   StateConfig   `yaml:"state"`
	Poller  PollerConfig  `yaml:"poller"`
	Influx  InfluxConfig  `yaml:"influx"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`
}

type SamsaraConfig struct {
	APIToken       string `yaml:"api_token"`
	BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
	OrganizationID string `yaml:"organization_id"`
	GroupID        string `yaml:"group_id"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	MaxRetries     int    `yaml:"max_retries" validate:"gte=0,lte=10"`
}

type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	Worksheet       string `yaml:"worksheet"`
	BatchSize       int    `yaml:"batch_size" validate:"gte=0,lte=10000"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" validate:"omitempty,url"`
	Channel    string `yaml:"channel"`
}

type WebhookConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Secret     string `yaml:"secret"`
}

type StateConfig struct {
	Path string `yaml:"path"`
}

type PollerConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds" validate:"gte=0"`
	DataTypes       []string `yaml:"data_types" validate:"dive,oneof=trips locations driver_stats vehicle_stats"`
	DedupTTLHours   int      `yaml:"dedup_ttl_hours" validate:"gte=0"`
}

type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

type ArchiveConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() PipelineConfig {
	stateDir := "pepworkday-state"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".pepworkday", "state")
	}
	return PipelineConfig{
		Samsara: SamsaraConfig{
			BaseURL:        "https://api.samsara.com",
			OrganizationID: "5005620",
			GroupID:        "129031",
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
		Sheets: SheetsConfig{
			Worksheet: "RawData",
			BatchSize: 1000,
		},
		Slack: SlackConfig{
			Channel: "#automation-alerts",
		},
		Webhook: WebhookConfig{
			ListenAddr: ":8080",
		},
		State: StateConfig{
			Path: stateDir,
		},
		Poller: PollerConfig{
			IntervalSeconds: 300,
			DataTypes:       []string{"trips", "locations", "driver_stats", "vehicle_stats"},
			DedupTTLHours:   24,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
