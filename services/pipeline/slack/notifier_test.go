// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSendsPayload(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	err := n.Post(context.Background(), Message{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, DefaultChannel, got.Channel)
}

func TestPostRetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, MaxRetries: 2})
	err := n.Post(context.Background(), Message{Text: "retry"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPostClientErrorNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "invalid_payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL, MaxRetries: 3})
	err := n.Post(context.Background(), Message{Text: "bad"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := New(Config{})
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Post(context.Background(), Message{Text: "dropped"}))
}

func TestNotifySummaryFormatsBlocks(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	err := n.NotifySummary(context.Background(), RunSummary{
		Worksheet: "RawData",
		Rows:      42,
		Inserted:  10,
		Updated:   5,
		Skipped:   27,
		MatchRate: 0.85,
		Duration:  1500 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NotEmpty(t, got.Blocks)
	assert.Contains(t, got.Text, "42 rows")
	assert.Contains(t, got.Blocks[0].Text.Text, "Dispatch sync complete")
	assert.Contains(t, got.Blocks[1].Text.Text, "Match rate: 85.0%")
}

func TestNotifyErrorFormatsBlocks(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	err := n.NotifyError(context.Background(), "enrich", assert.AnError)
	require.NoError(t, err)

	assert.Contains(t, got.Text, "failed in enrich")
	require.Len(t, got.Blocks, 2)
	assert.Contains(t, got.Blocks[1].Text.Text, "Stage: `enrich`")
}
