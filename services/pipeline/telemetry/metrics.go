// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry exposes Prometheus metrics for the pipeline, the
// poller, and the webhook receiver.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RunsTotal counts pipeline runs by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pepworkday_pipeline_runs_total",
		Help: "Pipeline runs by status (success, error, locked).",
	}, []string{"status"})

	// RunDuration observes end-to-end pipeline run time.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pepworkday_pipeline_run_duration_seconds",
		Help:    "End-to-end pipeline run duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	// RowsWritten counts worksheet writes by operation.
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pepworkday_sheet_rows_written_total",
		Help: "Rows written to Google Sheets by worksheet and operation.",
	}, []string{"worksheet", "operation"})

	// PollRecords counts polled records by data type and dedup outcome.
	PollRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pepworkday_poll_records_total",
		Help: "Polled records by data type and result (new, duplicate, error).",
	}, []string{"data_type", "result"})

	// WebhookEvents counts received webhook events by type and outcome.
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pepworkday_webhook_events_total",
		Help: "Webhook events by event type and status (processed, duplicate, rejected, error).",
	}, []string{"event_type", "status"})
)

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
