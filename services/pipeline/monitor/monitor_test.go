// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepmove/pepworkday/services/pipeline/dispatch"
	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/slack"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Category
	}{
		{fmt.Errorf("fetch: %w", samsara.ErrUnauthorized), CategoryAuth},
		{fmt.Errorf("fetch: %w", samsara.ErrRateLimited), CategoryRateLimit},
		{fmt.Errorf("load: %w", dispatch.ErrSchemaViolation), CategoryData},
		{&samsara.APIError{StatusCode: 502, Endpoint: "/fleet/trips"}, CategoryAPI},
		{errors.New("read worksheet \"RawData\": boom"), CategoryStorage},
		{errors.New("dial tcp: connection refused"), CategoryNetwork},
		{errors.New("something else"), CategoryUnknown},
		{nil, CategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "error: %v", tt.err)
	}
}

func TestDefaultSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, DefaultSeverity(CategoryAuth))
	assert.Equal(t, SeverityWarning, DefaultSeverity(CategoryRateLimit))
	assert.Equal(t, SeverityError, DefaultSeverity(CategoryUnknown))
}

func newTestAlerter(t *testing.T, cfg AlerterConfig) (*Alerter, *[]slack.Message, func(time.Time)) {
	t.Helper()
	var msgs []slack.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m slack.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		msgs = append(msgs, m)
	}))
	t.Cleanup(srv.Close)

	a := NewAlerter(cfg, slack.New(slack.Config{WebhookURL: srv.URL}))
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }
	setNow := func(tm time.Time) { now = tm }
	return a, &msgs, setNow
}

func TestAlerterCooldownSuppresses(t *testing.T) {
	a, msgs, setNow := newTestAlerter(t, AlerterConfig{Cooldown: 10 * time.Minute})
	ctx := context.Background()

	alert := Alert{Severity: SeverityError, Category: CategoryAPI, Source: "samsara", Message: "fetch failed"}
	assert.True(t, a.Report(ctx, alert))
	assert.False(t, a.Report(ctx, alert))
	assert.Len(t, *msgs, 1)

	// Past the cooldown, the same alert is delivered again.
	setNow(time.Date(2025, 6, 1, 8, 11, 0, 0, time.UTC))
	assert.True(t, a.Report(ctx, alert))
	assert.Len(t, *msgs, 2)
}

func TestAlerterEscalates(t *testing.T) {
	a, msgs, setNow := newTestAlerter(t, AlerterConfig{Cooldown: 10 * time.Minute, EscalateAfter: 2})
	ctx := context.Background()

	alert := Alert{Severity: SeverityWarning, Category: CategoryNetwork, Source: "poller", Message: "timeouts"}
	assert.True(t, a.Report(ctx, alert))
	a.Report(ctx, alert)
	a.Report(ctx, alert)

	setNow(time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC))
	assert.True(t, a.Report(ctx, alert))

	require.Len(t, *msgs, 2)
	assert.Contains(t, (*msgs)[0].Text, "[warning]")
	assert.Contains(t, (*msgs)[1].Text, "[error]")
}

func TestAlerterMinSeverityFilter(t *testing.T) {
	a, msgs, _ := newTestAlerter(t, AlerterConfig{Cooldown: time.Minute, MinSeverity: SeverityError})

	sent := a.Report(context.Background(), Alert{
		Severity: SeverityWarning, Category: CategoryData, Source: "dispatch", Message: "odd rows",
	})
	assert.False(t, sent)
	assert.Empty(t, *msgs)
}

func TestSinkWritesLineProtocol(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink, err := NewSink(InfluxConfig{URL: srv.URL, Token: "tok", Org: "pepmove", Bucket: "pipeline"})
	require.NoError(t, err)
	defer sink.Close()

	err = sink.WriteRun(context.Background(), RunPoint{
		Status:   "success",
		Rows:     42,
		Inserted: 10,
		Duration: 1500 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Contains(t, body, "pipeline_run")
	assert.Contains(t, body, "status=success")
	assert.Contains(t, body, "rows=42i")
	assert.Contains(t, body, "duration_ms=1500i")
}

func TestNilSinkIsNoop(t *testing.T) {
	var s *Sink
	assert.NoError(t, s.WriteRun(context.Background(), RunPoint{}))
	s.Close()
}
