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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepworkday.yaml")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	// File was created with defaults.
	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, "5005620", cfg.Samsara.OrganizationID)
	assert.Equal(t, "129031", cfg.Samsara.GroupID)
	assert.Equal(t, "RawData", cfg.Sheets.Worksheet)
	assert.Equal(t, 1000, cfg.Sheets.BatchSize)
	assert.Equal(t, "#automation-alerts", cfg.Slack.Channel)
	assert.Equal(t, 300, cfg.Poller.IntervalSeconds)
}

func TestLoadFromParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepworkday.yaml")
	content := `
samsara:
  api_token: tok-123
  max_retries: 5
sheets:
  spreadsheet_id: sheet-abc
  worksheet: Custom
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Samsara.APIToken)
	assert.Equal(t, 5, cfg.Samsara.MaxRetries)
	assert.Equal(t, "sheet-abc", cfg.Sheets.SpreadsheetID)
	assert.Equal(t, "Custom", cfg.Sheets.Worksheet)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep defaults.
	assert.Equal(t, "https://api.samsara.com", cfg.Samsara.BaseURL)
	assert.Equal(t, 1000, cfg.Sheets.BatchSize)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepworkday.yaml")
	t.Setenv("SAMSARA_API_TOKEN", "env-token")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/x")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Samsara.APIToken)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/x", cfg.Slack.WebhookURL)
}

func TestLoadFromRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepworkday.yaml")
	content := `
logging:
  level: loud
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}

func TestLoadFromRejectsBadDataType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pepworkday.yaml")
	content := `
poller:
  data_types: ["trips", "weather"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFrom(path)
	assert.Error(t, err)
}
