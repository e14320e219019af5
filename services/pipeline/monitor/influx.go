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
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxConfig holds InfluxDB v2 connection settings.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// RunPoint is one pipeline run measurement.
type RunPoint struct {
	Status    string
	Rows      int
	Inserted  int
	Updated   int
	Errors    int
	MatchRate float64
	Duration  time.Duration
	Timestamp time.Time
}

// Sink writes run metrics to InfluxDB. A nil Sink is a no-op, so the
// pipeline works without a metrics backend configured.
type Sink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewSink connects a Sink to the configured InfluxDB instance.
func NewSink(cfg InfluxConfig) (*Sink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("influxdb url not configured")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Sink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}, nil
}

// WriteRun records one pipeline run.
func (s *Sink) WriteRun(ctx context.Context, p RunPoint) error {
	if s == nil {
		return nil
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	point := influxdb2.NewPoint("pipeline_run",
		map[string]string{"status": p.Status},
		map[string]interface{}{
			"rows":        p.Rows,
			"inserted":    p.Inserted,
			"updated":     p.Updated,
			"errors":      p.Errors,
			"match_rate":  p.MatchRate,
			"duration_ms": p.Duration.Milliseconds(),
		}, ts)
	if err := s.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("write run point: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Sink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
