// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sheets

import "errors"

var (
	// ErrMissingKeyColumn is returned when the incoming table lacks the
	// upsert key column.
	ErrMissingKeyColumn = errors.New("table missing upsert key column")

	// ErrNoSpreadsheet is returned when no spreadsheet id is configured.
	ErrNoSpreadsheet = errors.New("spreadsheet id not configured")
)
