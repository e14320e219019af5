// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package monitor classifies pipeline failures, rate-limits alert
// delivery, and records run metrics to InfluxDB.
package monitor

import (
	"errors"
	"net"
	"strings"

	"github.com/pepmove/pepworkday/services/pipeline/dispatch"
	"github.com/pepmove/pepworkday/services/pipeline/samsara"
	"github.com/pepmove/pepworkday/services/pipeline/sheets"
)

// Severity orders alerts from informational to page-worthy.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Category groups failures by root cause for routing and dashboards.
type Category string

const (
	CategoryAuth      Category = "auth"
	CategoryRateLimit Category = "rate_limit"
	CategoryNetwork   Category = "network"
	CategoryData      Category = "data"
	CategoryStorage   Category = "storage"
	CategoryAPI       Category = "api"
	CategoryUnknown   Category = "unknown"
)

// Classify maps an error to its Category.
//
// Description:
//
//	Sentinel errors from the pipeline packages map directly; network
//	errors are detected via net.Error; remaining API errors fall back
//	to a string scan before landing in unknown.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	switch {
	case errors.Is(err, samsara.ErrUnauthorized):
		return CategoryAuth
	case errors.Is(err, samsara.ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, dispatch.ErrSchemaViolation),
		errors.Is(err, dispatch.ErrEmptyWorkbook),
		errors.Is(err, dispatch.ErrFileNotFound),
		errors.Is(err, dispatch.ErrSheetNotFound),
		errors.Is(err, sheets.ErrMissingKeyColumn):
		return CategoryData
	}

	var apiErr *samsara.APIError
	if errors.As(err, &apiErr) {
		return CategoryAPI
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "worksheet") || strings.Contains(msg, "spreadsheet"):
		return CategoryStorage
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout") || strings.Contains(msg, "dial"):
		return CategoryNetwork
	case strings.Contains(msg, "quota") || strings.Contains(msg, "rate limit"):
		return CategoryRateLimit
	}
	return CategoryUnknown
}

// DefaultSeverity suggests a starting severity per category.
func DefaultSeverity(c Category) Severity {
	switch c {
	case CategoryAuth:
		return SeverityCritical
	case CategoryStorage, CategoryAPI:
		return SeverityError
	case CategoryRateLimit, CategoryNetwork, CategoryData:
		return SeverityWarning
	default:
		return SeverityError
	}
}
