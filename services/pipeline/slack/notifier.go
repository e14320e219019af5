// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package slack posts pipeline notifications to a Slack incoming
// webhook. Delivery is best-effort: a failed notification is logged
// and never fails the run that produced it.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultChannel receives automation notifications.
const DefaultChannel = "#automation-alerts"

// Config holds webhook settings.
type Config struct {
	WebhookURL string
	Channel    string
	Timeout    time.Duration
	MaxRetries int
}

// Message is a Slack webhook payload. Text is the notification
// fallback shown where blocks are not rendered.
type Message struct {
	Channel string  `json:"channel,omitempty"`
	Text    string  `json:"text"`
	Blocks  []Block `json:"blocks,omitempty"`
}

// Block is a Block Kit section or divider.
type Block struct {
	Type string     `json:"type"`
	Text *BlockText `json:"text,omitempty"`
}

// BlockText is markdown content inside a block.
type BlockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func section(md string) Block {
	return Block{Type: "section", Text: &BlockText{Type: "mrkdwn", Text: md}}
}

// Notifier posts messages to the configured webhook. A Notifier with
// an empty webhook URL is a no-op, which keeps dry runs quiet.
type Notifier struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// New creates a Notifier. Channel defaults to DefaultChannel.
func New(cfg Config) *Notifier {
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Notifier{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  slog.Default().With("component", "slack"),
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.WebhookURL != ""
}

// Post sends a message to the webhook, retrying transient failures.
//
// Outputs:
//
//	error - Delivery failure after retries; callers may ignore it.
func (n *Notifier) Post(ctx context.Context, msg Message) error {
	if !n.Enabled() {
		n.log.Debug("slack disabled, dropping message", "text", msg.Text)
		return nil
	}
	if msg.Channel == "" {
		msg.Channel = n.cfg.Channel
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build slack request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			return nil
		}
		lastErr = fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			break
		}
	}
	n.log.Warn("slack notification failed", "error", lastErr)
	return lastErr
}

// RunSummary describes a completed sync for notification.
type RunSummary struct {
	Worksheet  string
	Rows       int
	Inserted   int
	Updated    int
	Skipped    int
	MatchRate  float64
	Errors     int
	Duration   time.Duration
	DryRun     bool
	SourceFile string
}

// NotifySummary posts a formatted end-of-run summary.
func (n *Notifier) NotifySummary(ctx context.Context, s RunSummary) error {
	title := ":white_check_mark: Dispatch sync complete"
	if s.Errors > 0 {
		title = ":warning: Dispatch sync finished with errors"
	}
	if s.DryRun {
		title += " (dry run)"
	}

	msg := Message{
		Text: fmt.Sprintf("Dispatch sync: %d rows, %d inserted, %d updated, %d errors",
			s.Rows, s.Inserted, s.Updated, s.Errors),
		Blocks: []Block{
			section(fmt.Sprintf("*%s*", title)),
			section(fmt.Sprintf(
				"Worksheet: `%s`\nRows: %d\nInserted: %d | Updated: %d | Skipped: %d\nMatch rate: %.1f%%\nErrors: %d\nDuration: %s",
				s.Worksheet, s.Rows, s.Inserted, s.Updated, s.Skipped,
				s.MatchRate*100, s.Errors, s.Duration.Round(time.Millisecond))),
		},
	}
	if s.SourceFile != "" {
		msg.Blocks = append(msg.Blocks, section(fmt.Sprintf("Source: `%s`", s.SourceFile)))
	}
	return n.Post(ctx, msg)
}

// NotifyError posts a pipeline failure notice.
func (n *Notifier) NotifyError(ctx context.Context, stage string, err error) error {
	return n.Post(ctx, Message{
		Text: fmt.Sprintf("Dispatch sync failed in %s: %v", stage, err),
		Blocks: []Block{
			section(":rotating_light: *Dispatch sync failed*"),
			section(fmt.Sprintf("Stage: `%s`\nError: %v", stage, err)),
		},
	})
}
