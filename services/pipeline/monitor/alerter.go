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
	"log/slog"
	"sync"
	"time"

	"github.com/pepmove/pepworkday/services/pipeline/slack"
)

// Alert is one observed failure condition.
type Alert struct {
	Severity Severity
	Category Category
	Source   string
	Message  string
	Err      error
}

// AlerterConfig tunes alert delivery.
type AlerterConfig struct {
	// Cooldown suppresses repeat alerts for the same source+category.
	Cooldown time.Duration

	// EscalateAfter bumps severity one level once a suppressed alert
	// has repeated this many times within its cooldown window.
	EscalateAfter int

	// MinSeverity is the lowest severity forwarded to Slack.
	MinSeverity Severity
}

// DefaultAlerterConfig suits the scheduled-sync cadence.
func DefaultAlerterConfig() AlerterConfig {
	return AlerterConfig{
		Cooldown:      15 * time.Minute,
		EscalateAfter: 3,
		MinSeverity:   SeverityWarning,
	}
}

// Alerter forwards alerts to Slack with cooldown and escalation.
// Safe for concurrent use.
type Alerter struct {
	cfg      AlerterConfig
	notifier *slack.Notifier
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
	repeats  map[string]int
}

// NewAlerter creates an Alerter posting through notifier.
func NewAlerter(cfg AlerterConfig, notifier *slack.Notifier) *Alerter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultAlerterConfig().Cooldown
	}
	if cfg.EscalateAfter <= 0 {
		cfg.EscalateAfter = DefaultAlerterConfig().EscalateAfter
	}
	return &Alerter{
		cfg:      cfg,
		notifier: notifier,
		log:      slog.Default().With("component", "monitor"),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		repeats:  make(map[string]int),
	}
}

// Report records an alert and forwards it to Slack unless suppressed.
//
// Description:
//
//	Alerts are keyed on source+category. Within the cooldown window
//	repeats are counted but not delivered; once the repeat count
//	passes EscalateAfter the next delivery goes out one severity
//	level higher. Returns true when the alert was forwarded.
func (a *Alerter) Report(ctx context.Context, alert Alert) bool {
	if alert.Category == "" {
		alert.Category = Classify(alert.Err)
	}
	if alert.Severity == 0 && alert.Err != nil {
		alert.Severity = DefaultSeverity(alert.Category)
	}

	key := alert.Source + "/" + string(alert.Category)
	now := a.now()

	a.mu.Lock()
	last, sent := a.lastSent[key]
	inCooldown := sent && now.Sub(last) < a.cfg.Cooldown
	if inCooldown {
		a.repeats[key]++
		repeats := a.repeats[key]
		a.mu.Unlock()
		a.log.Debug("alert suppressed", "key", key, "repeats", repeats)
		return false
	}
	if a.repeats[key] >= a.cfg.EscalateAfter && alert.Severity < SeverityCritical {
		alert.Severity++
	}
	a.lastSent[key] = now
	a.repeats[key] = 0
	a.mu.Unlock()

	a.log.LogAttrs(ctx, severityLogLevel(alert.Severity), "pipeline alert",
		slog.String("severity", alert.Severity.String()),
		slog.String("category", string(alert.Category)),
		slog.String("source", alert.Source),
		slog.String("message", alert.Message))

	if alert.Severity < a.cfg.MinSeverity || a.notifier == nil {
		return false
	}
	detail := alert.Message
	if alert.Err != nil {
		detail = fmt.Sprintf("%s: %v", alert.Message, alert.Err)
	}
	// Delivery failures are already logged by the notifier.
	_ = a.notifier.Post(ctx, slack.Message{
		Text: fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Source, detail),
	})
	return true
}

func severityLogLevel(s Severity) slog.Level {
	switch s {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
