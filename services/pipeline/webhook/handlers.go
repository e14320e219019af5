// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxPayloadBytes bounds webhook bodies; Samsara events are small.
const maxPayloadBytes = 1 << 20

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Handlers contains the HTTP handlers for the webhook receiver.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers wrapping svc.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleEvent handles POST /webhook/samsara.
//
// Description:
//
//	Verifies the X-Samsara-Signature HMAC over the raw body, parses
//	the event envelope, and hands it to the service. Duplicate events
//	return 200 so Samsara does not retry them.
//
// Response:
//
//	200 OK: {"status": "processed"|"duplicate"}
//	400 Bad Request: Malformed body
//	401 Unauthorized: Missing or invalid signature
//	500 Internal Server Error: Processing failure
func (h *Handlers) HandleEvent(c *gin.Context) {
	requestID := uuid.NewString()
	logger := slog.With("request_id", requestID, "handler", "HandleEvent")

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes))
	if err != nil {
		logger.Warn("Failed to read body", "error", err)
		h.svc.Rejected("unknown")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Unreadable body", Code: "BAD_BODY"})
		return
	}

	sig := c.GetHeader(SignatureHeader)
	if !VerifySignature(h.svc.Secret(), payload, sig) {
		logger.Warn("Signature verification failed", "has_signature", sig != "")
		h.svc.Rejected("unknown")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid signature", Code: "BAD_SIGNATURE"})
		return
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		logger.Warn("Malformed event payload", "error", err)
		h.svc.Rejected("unknown")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Malformed event", Code: "BAD_EVENT"})
		return
	}

	processed, err := h.svc.Process(c.Request.Context(), ev, payload)
	if err != nil {
		logger.Error("Event processing failed", "event_id", ev.EventID, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Processing failed", Code: "PROCESS_ERROR"})
		return
	}

	status := "duplicate"
	if processed {
		status = "processed"
	}
	logger.Info("Event handled",
		"event_id", ev.EventID, "event_type", ev.EventType, "status", status)
	c.JSON(http.StatusOK, gin.H{"status": status, "event_id": ev.EventID})
}

// HandleHealth handles GET /webhook/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "pepworkday-webhook",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// statsResponse is the stats body: counters plus receiver capabilities.
type statsResponse struct {
	Stats
	SupportedCategories []string `json:"supported_categories"`
	NotifiedEvents      []string `json:"notified_events"`
	SignatureRequired   bool     `json:"signature_required"`
}

// HandleStats handles GET /webhook/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, statsResponse{
		Stats: h.svc.Stats(),
		SupportedCategories: []string{
			string(CategoryTrip), string(CategoryGeofence),
			string(CategoryMaintenance), string(CategoryVehicle),
			string(CategoryDriver),
		},
		NotifiedEvents:    []string{"tripStarted", "tripCompleted"},
		SignatureRequired: len(h.svc.Secret()) > 0,
	})
}
