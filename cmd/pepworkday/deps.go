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
	"log/slog"
	"time"

	"github.com/pepmove/pepworkday/services/pipeline"
	"github.com/pepmove/pepworkday/services/pipeline/archive"
	"github.com/pepmove/pepworkday/services/pipeline/monitor"
	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/sheets"
	"github.com/pepmove/pepworkday/services/pipeline/slack"
	"github.com/pepmove/pepworkday/services/pipeline/state"
)

// deps holds the wired service clients for one command invocation.
type deps struct {
	store    *state.Store
	samsara  *samsara.Client
	sheets   *sheets.Client
	notifier *slack.Notifier
	alerter  *monitor.Alerter
	sink     *monitor.Sink
	archiver *archive.Archiver
}

// buildDeps wires clients from the loaded configuration.
//
// Description:
//
//	The state store, Samsara client, and Slack notifier are always
//	built. The Sheets client is built only when needSheets is set
//	(dry runs skip it). Influx and archive are optional: they attach
//	when configured and are nil otherwise.
func buildDeps(ctx context.Context, needSheets bool) (*deps, error) {
	stateCfg := state.DefaultConfig()
	stateCfg.Path = cfg.State.Path
	stateCfg.Logger = slog.Default().With("component", "state")
	store, err := state.Open(stateCfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	d := &deps{
		store: store,
		samsara: samsara.New(samsara.Config{
			APIToken:       cfg.Samsara.APIToken,
			BaseURL:        cfg.Samsara.BaseURL,
			OrganizationID: cfg.Samsara.OrganizationID,
			GroupID:        cfg.Samsara.GroupID,
			Timeout:        time.Duration(cfg.Samsara.TimeoutSeconds) * time.Second,
			MaxRetries:     cfg.Samsara.MaxRetries,
		}),
		notifier: slack.New(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
		}),
	}
	d.alerter = monitor.NewAlerter(monitor.DefaultAlerterConfig(), d.notifier)

	if needSheets {
		d.sheets, err = sheets.NewClient(ctx, sheets.Config{
			CredentialsFile: cfg.Sheets.CredentialsFile,
			SpreadsheetID:   cfg.Sheets.SpreadsheetID,
			Worksheet:       cfg.Sheets.Worksheet,
			BatchSize:       cfg.Sheets.BatchSize,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	if cfg.Influx.URL != "" {
		d.sink, err = monitor.NewSink(monitor.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			slog.Warn("influxdb sink unavailable", "error", err)
		}
	}

	if cfg.Archive.Bucket != "" {
		d.archiver, err = archive.New(ctx, archive.Config{
			CredentialsFile: cfg.Archive.CredentialsFile,
			Bucket:          cfg.Archive.Bucket,
			Prefix:          cfg.Archive.Prefix,
		})
		if err != nil {
			slog.Warn("archive unavailable", "error", err)
		}
	}
	return d, nil
}

// pipelineService assembles the orchestrator from the wired deps.
func (d *deps) pipelineService() *pipeline.Service {
	svc := pipeline.New(d.samsara, d.sheets, d.store, d.notifier).
		WithAlerter(d.alerter)
	if d.sink != nil {
		svc = svc.WithSink(d.sink)
	}
	if d.archiver != nil {
		svc = svc.WithArchiver(d.archiver)
	}
	return svc
}

func (d *deps) Close() {
	if d.archiver != nil {
		if err := d.archiver.Close(); err != nil {
			slog.Warn("failed to close archiver", "error", err)
		}
	}
	d.sink.Close()
	if err := d.store.Close(); err != nil {
		slog.Warn("failed to close state store", "error", err)
	}
}
