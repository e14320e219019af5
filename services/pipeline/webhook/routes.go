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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the webhook endpoints with the router.
//
// Endpoints:
//
//	POST /webhook/samsara - Receive a Samsara event
//	GET  /webhook/health - Liveness check
//	GET  /webhook/stats - Processing counters since startup
func RegisterRoutes(r *gin.Engine, handlers *Handlers) {
	wh := r.Group("/webhook")
	{
		wh.POST("/samsara", handlers.HandleEvent)
		wh.GET("/health", handlers.HandleHealth)
		wh.GET("/stats", handlers.HandleStats)
	}
}
