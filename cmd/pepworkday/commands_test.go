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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"sync", "poll", "serve", "schedule", "watch", "health"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestSyncFlagDefaults(t *testing.T) {
	f := syncCmd.Flags()

	input := f.Lookup("input")
	require.NotNil(t, input)
	assert.Contains(t, input.Annotations, "cobra_annotation_bash_completion_one_required_flag")

	window := f.Lookup("window-hours")
	require.NotNil(t, window)
	assert.Equal(t, "24", window.DefValue)

	dry := f.Lookup("dry-run")
	require.NotNil(t, dry)
	assert.Equal(t, "false", dry.DefValue)
}

func TestScheduleDefaultCron(t *testing.T) {
	spec := scheduleCmd.Flags().Lookup("cron")
	require.NotNil(t, spec)
	assert.Equal(t, "0 6 * * *", spec.DefValue)
}
