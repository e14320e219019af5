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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMarkSeenFirstAndRepeat(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.MarkSeen(ctx, "trips", "hash-1", 0)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkSeen(ctx, "trips", "hash-1", 0)
	require.NoError(t, err)
	assert.False(t, again)

	seen, err := s.Seen(ctx, "trips", "hash-1")
	require.NoError(t, err)
	assert.True(t, seen)

	// Same hash under a different data type is independent.
	seen, err = s.Seen(ctx, "locations", "hash-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestSeenCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, h := range []string{"a", "b", "c"} {
		_, err := s.MarkSeen(ctx, "trips", h, time.Hour)
		require.NoError(t, err)
	}
	_, err := s.MarkSeen(ctx, "locations", "a", time.Hour)
	require.NoError(t, err)

	n, err := s.SeenCount(ctx, "trips")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPollCursor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LastPoll(ctx, "trips")
	require.NoError(t, err)
	assert.False(t, ok)

	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastPoll(ctx, "trips", want))

	got, ok, err := s.LastPoll(ctx, "trips")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(want))
}

func TestRunLock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.AcquireLock(ctx, "sync", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AcquireLock(ctx, "sync", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// Wrong owner cannot release.
	require.NoError(t, s.ReleaseLock(ctx, "sync", "owner-b"))
	ok, err = s.AcquireLock(ctx, "sync", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.ReleaseLock(ctx, "sync", "owner-a"))
	ok, err = s.AcquireLock(ctx, "sync", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestContextCancellation(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.MarkSeen(ctx, "trips", "h", 0)
	assert.ErrorIs(t, err, context.Canceled)
	_, _, err = s.LastPoll(ctx, "trips")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPersistentStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Path = dir
	cfg.GCInterval = 0

	s, err := Open(cfg)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.MarkSeen(ctx, "trips", "persisted", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Marks survive a restart.
	s, err = Open(cfg)
	require.NoError(t, err)
	defer s.Close()

	seen, err := s.Seen(ctx, "trips", "persisted")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHashFields(t *testing.T) {
	assert.Equal(t, HashFields("ab", "c"), HashFields("ab", "c"))
	assert.NotEqual(t, HashFields("ab", "c"), HashFields("a", "bc"))
	assert.NotEmpty(t, HashPayload([]byte("{}")))
	assert.NotEqual(t, HashPayload([]byte("{}")), HashPayload([]byte("[]")))
}
