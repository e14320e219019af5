// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashFields builds a stable dedup hash from identity fields. Fields
// are length-prefix separated so ("ab","c") and ("a","bc") differ.
func HashFields(fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		var lenBuf [8]byte
		n := len(f)
		for i := 0; i < 8; i++ {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashPayload hashes an opaque payload, used when a record carries no
// natural identity fields.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
