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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/pepmove/pepworkday/services/pipeline/state"
	"github.com/pepmove/pepworkday/services/pipeline/telemetry"
	"github.com/pepmove/pepworkday/services/pipeline/webhook"
)

var (
	serveAddr string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Samsara webhook receiver",
		Long: `Serves the webhook endpoint that receives Samsara event
				callbacks, plus health, stats, and Prometheus metrics.`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address override (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Webhook.Secret == "" {
		return fmt.Errorf("webhook secret is not configured; set webhook.secret or SAMSARA_WEBHOOK_SECRET")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, true)
	if err != nil {
		return err
	}
	defer d.Close()

	ttl := time.Duration(cfg.Poller.DedupTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = state.DefaultDedupTTL
	}
	svc := webhook.NewService(webhook.ServiceConfig{
		Secret:   cfg.Webhook.Secret,
		DedupTTL: ttl,
	}, d.store, d.sheets, d.notifier)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	webhook.RegisterRoutes(r, webhook.NewHandlers(svc))
	r.GET("/metrics", gin.WrapH(telemetry.Handler()))

	addr := cfg.Webhook.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("webhook receiver listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown webhook server: %w", err)
	}
	slog.Info("webhook receiver stopped")
	return nil
}
