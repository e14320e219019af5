// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package samsara

import (
	"errors"
	"fmt"
)

// Sentinel errors for Samsara API operations.
var (
	// ErrRateLimited is returned when the API keeps responding 429
	// after all retries are exhausted.
	ErrRateLimited = errors.New("samsara api rate limited")

	// ErrUnauthorized is returned on 401/403 responses. Retrying is
	// pointless until the token is fixed, so the client fails fast.
	ErrUnauthorized = errors.New("samsara api authorization failed")
)

// APIError carries the status code and body excerpt of a failed request.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("samsara api %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
